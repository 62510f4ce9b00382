// Package middleware provides an onion-chain of wrappers around a
// registered Request handler: logging, timeout, retry, and rate limiting.
//
// msgpack-rpc has no separate client/server role — a peer both issues and
// answers calls over the same session — so unlike an HTTP-RPC handler
// chain, this Handler wraps request-answering only. There is nothing to
// wrap on the calling side; RpcSession.SyncCall already owns its own
// timeout parameter.
package middleware

import (
	"context"

	"github.com/matrixant/message-pack/value"
)

// Handler answers a Request for method with the given params. It carries
// method and a context alongside params because dispatcher.RequestHandler
// itself has neither — a chain built from Handler is adapted to
// dispatcher.RequestHandler at registration time, with method and
// context.Background() bound into the closure.
type Handler func(ctx context.Context, method string, params []value.Value) (result, errVal value.Value)

// Middleware wraps a Handler to produce another Handler.
type Middleware func(next Handler) Handler

// Chain composes middlewares into one, applied outermost-first: the first
// middleware in the list sees the call before any of the others.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
