// Package registry resolves a msgpack-rpc peer's dial address by service
// name. A session dials exactly one transport, so Registry only needs to
// answer "what addresses currently serve this service" — the picking of
// one among them is loadbalance's job, not the registry's.
package registry

// ServiceInstance is one running peer's dial address plus enough metadata
// for a Balancer to pick among several.
type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

// Registry announces and resolves ServiceInstances under a service name.
type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, addr string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
