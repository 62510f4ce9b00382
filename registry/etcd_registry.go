// Package registry provides the etcd-based implementation of the Registry
// interface.
//
// etcd is a distributed key-value store that provides strong consistency
// (Raft protocol). We use it as a "distributed phonebook" for services:
//
//	Key:   /msgpack-rpc/{ServiceName}/{Addr}
//	Value: msgpack-encoded ServiceInstance (the same codec the RPC peers
//	       speak on the wire, so a registry dump can be decoded with the
//	       same tools that decode a captured session)
//
// Registration uses TTL-based leases: if the server crashes, the lease
// expires and the entry is automatically removed — preventing "ghost"
// instances.
package registry

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/matrixant/message-pack/codec"
	"github.com/matrixant/message-pack/value"
)

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

func instanceKey(serviceName, addr string) string {
	return "/msgpack-rpc/" + serviceName + "/" + addr
}

func instancePrefix(serviceName string) string {
	return "/msgpack-rpc/" + serviceName + "/"
}

// encodeInstance packs a ServiceInstance into the same wire encoding the
// RPC peers themselves use, rather than a side-channel format.
func encodeInstance(instance ServiceInstance) ([]byte, error) {
	v := value.MapOf(
		value.KV{Key: value.Str("addr"), Val: value.Str(instance.Addr)},
		value.KV{Key: value.Str("weight"), Val: value.Int(int64(instance.Weight))},
		value.KV{Key: value.Str("version"), Val: value.Str(instance.Version)},
	)
	return codec.Encode(v)
}

func decodeInstance(data []byte) (ServiceInstance, error) {
	v, err := codec.Decode(data)
	if err != nil {
		return ServiceInstance{}, err
	}
	var instance ServiceInstance
	if addr, ok := v.Get(value.Str("addr")); ok {
		instance.Addr, _ = addr.AsStr()
	}
	if weight, ok := v.Get(value.Str("weight")); ok {
		w, _ := weight.AsInt()
		instance.Weight = int(w)
	}
	if version, ok := v.Get(value.Str("version")); ok {
		instance.Version, _ = version.AsStr()
	}
	return instance, nil
}

// Register adds a service instance to etcd with a TTL lease.
//
// Flow:
//  1. Create a lease with the given TTL (e.g., 10 seconds)
//  2. Put the key-value pair with the lease attached
//  3. Start KeepAlive to automatically renew the lease
//
// Note: leaseID is a local variable, NOT stored on the struct.
// This prevents a data race when multiple servers share one EtcdRegistry instance
// (discovered via `go test -race`).
func (r *EtcdRegistry) Register(serviceName string, instance ServiceInstance, ttl int64) error {
	ctx := context.TODO()

	// Create a TTL-based lease — if KeepAlive stops, the entry auto-expires
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := encodeInstance(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, instanceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// Start background lease renewal — KeepAlive sends heartbeats to etcd
	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a service instance from etcd.
// Called during graceful shutdown before closing the listener.
func (r *EtcdRegistry) Deregister(serviceName string, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, instanceKey(serviceName, addr))
	if err != nil {
		return err
	}
	return nil
}

// Watch monitors a service prefix in etcd and emits updated instance lists
// whenever changes occur (new registrations, deregistrations, lease expirations).
//
// Uses etcd's Watch API (server-push), which is more efficient than polling.
func (r *EtcdRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	ctx := context.TODO()
	ch := make(chan []ServiceInstance, 1)

	go func() {
		watchChan := r.client.Watch(ctx, instancePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			// (simpler than parsing individual watch events)
			instances, _ := r.Discover(serviceName)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a service.
// Queries etcd with a key prefix to find all instances under the service's namespace.
func (r *EtcdRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	ctx := context.TODO()

	resp, err := r.client.Get(ctx, instancePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		instance, err := decodeInstance(kv.Value)
		if err != nil {
			continue // skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}
