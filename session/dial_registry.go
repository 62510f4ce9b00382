package session

import (
	"fmt"

	"github.com/matrixant/message-pack/eventsink"
	"github.com/matrixant/message-pack/loadbalance"
	"github.com/matrixant/message-pack/registry"
)

// DialViaRegistry resolves serviceName through reg, picks one instance with
// bal, and connects a new session to it. A session owns exactly one
// transport, so this is address *selection* done once at dial time, not
// per-call load balancing across a connection pool.
func DialViaRegistry(reg registry.Registry, bal loadbalance.Balancer, serviceName string, sink eventsink.Sink) (*RpcSession, error) {
	instances, err := reg.Discover(serviceName)
	if err != nil {
		return nil, fmt.Errorf("session: discover %s: %w", serviceName, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("session: no instances registered for %s", serviceName)
	}

	instance, err := bal.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("session: pick instance for %s: %w", serviceName, err)
	}

	sess := New(sink)
	if err := sess.Connect("tcp", instance.Addr); err != nil {
		return nil, err
	}
	return sess, nil
}
