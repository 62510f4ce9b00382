// Package loadbalance picks one ServiceInstance out of the list a Registry
// returns. A msgpack-rpc session dials exactly one transport, so a Balancer
// only ever runs once per DialViaRegistry call, not once per RPC — unlike a
// pooled-connection client that would re-pick on every outgoing call.
//
// RoundRobin is the only strategy carried: it's the one DialViaRegistry
// actually exercises picking a single dial target across repeated dials.
package loadbalance

import "github.com/matrixant/message-pack/registry"

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one instance from the available list, called once per
	// DialViaRegistry attempt — must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
