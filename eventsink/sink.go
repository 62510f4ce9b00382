// Package eventsink defines the deferred-delivery boundary between the
// session's background pump goroutine and whatever thread a host
// application wants handler callbacks to run on. The pump never invokes a
// request/notification handler or a caller's async-response continuation
// directly; it hands an Event to a Sink instead.
package eventsink

import "github.com/matrixant/message-pack/value"

// Kind enumerates the events the pump can emit.
type Kind int

const (
	Connected Kind = iota
	Disconnected
	GotError
	MessageReceived
	RequestReceived
	ResponseReceived
	NotificationReceived
	DeferredCall
)

func (k Kind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case GotError:
		return "got_error"
	case MessageReceived:
		return "message_received"
	case RequestReceived:
		return "request_received"
	case ResponseReceived:
		return "response_received"
	case NotificationReceived:
		return "notification_received"
	case DeferredCall:
		return "deferred_call"
	default:
		return "unknown"
	}
}

// Event is a single occurrence the pump wants delivered off its own
// goroutine. Fields are populated according to Kind; irrelevant fields are
// left at their zero value.
type Event struct {
	Kind Kind

	// MessageReceived: the raw decoded value, before it is even known to be
	// well-formed msgpack-rpc framing. Emitted for every value the stream
	// parser completes, in addition to whatever more specific event (or
	// GotError, if framing is malformed) follows from it.
	Value value.Value

	// RequestReceived / NotificationReceived
	MsgID  uint32
	Method string
	Params []value.Value

	// RequestReceived: call this to send the reply once the handler has
	// produced a result or error. Nil for notifications, since there is
	// nothing to reply to.
	Reply func(result, errVal value.Value)

	// ResponseReceived: the correlated sync-slot's result, delivered here
	// only when nobody was blocked in SyncCall waiting for it (e.g. it
	// arrived after the caller's deadline already fired).
	Result value.Value
	Error  value.Value

	// Connected / Disconnected
	Host string
	Port int

	// GotError / Disconnected
	Err error

	// DeferredCall carries an arbitrary host-thread continuation, used by
	// the session to marshal its own internal callbacks (e.g. an async
	// call's completion) onto the same delivery channel as handler
	// invocations, so a host never has to special-case ordering between
	// the two.
	Call func()
}

// Sink is the delivery target for pump-emitted events. Implementations
// decide how to get from "some background goroutine" to "wherever handler
// code should actually run" — a bounded channel for a host with its own
// event loop, or direct synchronous invocation for a headless peer that
// doesn't care which goroutine runs handlers.
type Sink interface {
	Emit(Event)
}

// SyncSink invokes handlers directly on the emitting goroutine. Suitable
// for headless peers (no UI thread affinity requirement) or tests.
type SyncSink struct{}

func (SyncSink) Emit(ev Event) {
	if ev.Call != nil {
		ev.Call()
	}
}
