// Package rpcservice binds Go methods to session Request handlers using
// the net/rpc calling convention: exported methods shaped like
// Method(*Args, *Reply) error are discovered by reflection and registered
// on an RpcSession as "TypeName.Method", with params[0] decoded into Args
// and Reply re-encoded into the result value.
package rpcservice

import (
	"context"
	"fmt"
	"reflect"

	"github.com/matrixant/message-pack/middleware"
	"github.com/matrixant/message-pack/session"
	"github.com/matrixant/message-pack/value"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

// Service wraps a receiver value and the subset of its exported methods
// that match the RPC calling convention.
type Service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// NewService inspects rcvr (which must be a pointer to a struct) and
// collects its RPC-shaped methods under name TypeName.MethodName.
func NewService(rcvr any) (*Service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpcservice: rcvr must be a pointer, got %s", typ.Kind())
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpcservice: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	srv := &Service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpcservice: %s has no methods shaped func(*Args, *Reply) error", srv.name)
	}
	return srv, nil
}

// registerMethods keeps only exported methods with the three-argument
// (receiver, *Args, *Reply) error shape.
func (s *Service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		if method.Type.NumIn() != 3 || method.Type.NumOut() != 1 || method.Type.Out(0) != errorType ||
			method.Type.In(1).Kind() != reflect.Ptr || method.Type.In(2).Kind() != reflect.Ptr {
			continue
		}
		s.method[method.Name] = &methodType{
			method:    method,
			ArgType:   method.Type.In(1).Elem(),
			ReplyType: method.Type.In(2).Elem(),
		}
	}
}

func (s *Service) call(mType *methodType, argv, replyv reflect.Value) error {
	results := mType.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// Register scans rcvr and installs every discovered method on sess as a
// Request handler, with no middleware chain in front of it. It is
// equivalent to RegisterWithMiddleware(sess, rcvr, nil, overwrite).
func Register(sess *session.RpcSession, rcvr any, overwrite bool) error {
	return RegisterWithMiddleware(sess, rcvr, nil, overwrite)
}

// RegisterWithMiddleware scans rcvr and installs every discovered method on
// sess as a Request handler wrapped by chain (pass nil for no wrapping). A
// Request's params[0] (or an empty Map when params is empty) decodes into
// the method's Args; its Reply, once the call succeeds, encodes into the
// result. A returned error becomes the Response's error value instead of
// its result. Wrapping with chain is how a rate limit, timeout, retry, or
// logging policy applies uniformly to every method a receiver exposes,
// without touching the receiver's own code.
func RegisterWithMiddleware(sess *session.RpcSession, rcvr any, chain middleware.Middleware, overwrite bool) error {
	srv, err := NewService(rcvr)
	if err != nil {
		return err
	}
	for name, mType := range srv.method {
		mType := mType
		fqName := srv.name + "." + name
		handler := func(ctx context.Context, method string, params []value.Value) (value.Value, value.Value) {
			argv := reflect.New(mType.ArgType)
			if len(params) > 0 {
				if err := decodeInto(params[0], argv.Elem()); err != nil {
					return value.Nil(), value.Str(err.Error())
				}
			}
			replyv := reflect.New(mType.ReplyType)
			if err := srv.call(mType, argv, replyv); err != nil {
				return value.Nil(), value.Str(err.Error())
			}
			return encodeReflect(replyv.Elem()), value.Nil()
		}
		if err := sess.RegisterRequestFunc(fqName, handler, chain, overwrite); err != nil {
			return err
		}
	}
	return nil
}
