// Package dispatcher classifies a decoded MessagePack-RPC message and
// routes it to a registered handler, a caller waiting on a correlated
// response, or the host's event sink when nothing local claims it.
//
// Classification never runs application code inline: everything the
// dispatcher decides to invoke — a handler, a reply write, a fallback
// event — is handed to an eventsink.Sink as a deferred call, so the
// goroutine driving Dispatch (the session's pump) never blocks on
// user code.
package dispatcher

import (
	"github.com/matrixant/message-pack/eventsink"
	"github.com/matrixant/message-pack/message"
	"github.com/matrixant/message-pack/value"
)

// RequestHandler answers a Request. It owns when — and whether — it
// replies: reply may be called synchronously before the handler returns,
// stashed away and called later from another goroutine once some
// longer-running operation finishes, or (in the unlikely case a handler
// decides a Request doesn't warrant a reply after all) never called at
// all. Calling reply more than once for the same msgid is the handler's
// bug, not the dispatcher's to prevent.
type RequestHandler func(msgid uint32, params []value.Value, reply func(result, errVal value.Value))

// NotificationHandler reacts to a Notification. It has no reply channel.
type NotificationHandler func(params []value.Value)

// ReplyWriter sends a Response message back over the wire. The session
// implements this by enqueueing onto its outbound message queue.
type ReplyWriter interface {
	WriteResponse(msgid uint32, result, errVal value.Value) error
}

// ResponseCorrelator attempts to match an inbound Response to a pending
// call. It returns true when some waiter consumed the response (a blocked
// SyncCall, or an AsyncCall continuation already scheduled), false when the
// response arrived unclaimed — its msgid does not match anything currently
// tracked, e.g. after that call's deadline already elapsed.
type ResponseCorrelator interface {
	Resolve(msgid uint32, result, errVal value.Value) bool
}

// Dispatcher owns the handler tables for one session and applies the
// classification rules to every decoded Message.
type Dispatcher struct {
	sink       eventsink.Sink
	reply      ReplyWriter
	correlator ResponseCorrelator
	requests   map[string]RequestHandler
	notifiers  map[string]NotificationHandler
}

// New builds a Dispatcher. sink receives every event the dispatcher can't
// or shouldn't resolve synchronously; reply and correlator wire it to the
// owning session's outbound queue and pending-call table.
func New(sink eventsink.Sink, reply ReplyWriter, correlator ResponseCorrelator) *Dispatcher {
	return &Dispatcher{
		sink:       sink,
		reply:      reply,
		correlator: correlator,
		requests:   make(map[string]RequestHandler),
		notifiers:  make(map[string]NotificationHandler),
	}
}

// RegisterRequest installs the handler invoked for Requests naming method.
// A nil handler removes any existing registration.
func (d *Dispatcher) RegisterRequest(method string, handler RequestHandler) {
	if handler == nil {
		delete(d.requests, method)
		return
	}
	d.requests[method] = handler
}

// RequestRegistered reports whether a Request handler is installed for method.
func (d *Dispatcher) RequestRegistered(method string) bool {
	_, ok := d.requests[method]
	return ok
}

// NotificationRegistered reports whether a Notification handler is
// installed for method.
func (d *Dispatcher) NotificationRegistered(method string) bool {
	_, ok := d.notifiers[method]
	return ok
}

// RegisterNotification installs the handler invoked for Notifications
// naming method. A nil handler removes any existing registration.
func (d *Dispatcher) RegisterNotification(method string, handler NotificationHandler) {
	if handler == nil {
		delete(d.notifiers, method)
		return
	}
	d.notifiers[method] = handler
}

// Dispatch classifies msg and routes it. It never returns an error: a
// message that fails classification (unknown method, wrong param shape) is
// still delivered — as an error Response for a Request, silently for a
// Notification, or as an unmatched-response event — never dropped without
// a trace.
func (d *Dispatcher) Dispatch(msg message.Message) {
	switch msg.Type {
	case message.TypeRequest:
		d.dispatchRequest(msg)
	case message.TypeNotification:
		d.dispatchNotification(msg)
	case message.TypeResponse:
		d.dispatchResponse(msg)
	}
}

func (d *Dispatcher) dispatchRequest(msg message.Message) {
	msgid := msg.MsgID
	replyFn := func(result, errVal value.Value) {
		d.reply.WriteResponse(msgid, result, errVal)
	}

	handler, ok := d.requests[msg.Method]
	if !ok {
		d.sink.Emit(eventsink.Event{
			Kind:   eventsink.RequestReceived,
			MsgID:  msgid,
			Method: msg.Method,
			Params: msg.Params,
			Reply:  replyFn,
		})
		return
	}

	params := msg.Params
	d.sink.Emit(eventsink.Event{
		Kind: eventsink.DeferredCall,
		Call: func() { handler(msgid, params, replyFn) },
	})
}

func (d *Dispatcher) dispatchNotification(msg message.Message) {
	handler, ok := d.notifiers[msg.Method]
	if !ok {
		d.sink.Emit(eventsink.Event{
			Kind:   eventsink.NotificationReceived,
			Method: msg.Method,
			Params: msg.Params,
		})
		return
	}

	params := msg.Params
	d.sink.Emit(eventsink.Event{
		Kind: eventsink.DeferredCall,
		Call: func() { handler(params) },
	})
}

func (d *Dispatcher) dispatchResponse(msg message.Message) {
	if d.correlator.Resolve(msg.MsgID, msg.Result, msg.Error) {
		return
	}
	d.sink.Emit(eventsink.Event{
		Kind:   eventsink.ResponseReceived,
		MsgID:  msg.MsgID,
		Result: msg.Result,
		Error:  msg.Error,
	})
}
