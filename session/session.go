// Package session implements RpcSession: a MessagePack-RPC peer over one
// stream transport, driven by a single background pump goroutine, exposing
// a thread-safe caller API (async/sync calls, replies, notifications,
// handler registration) to every other goroutine.
//
// A session is symmetric: msgpack-rpc has no separate client/server role,
// so there is one peer type rather than a client paired with a server, and
// correlating "the one in-flight sync call" needs a single slot rather
// than a map keyed by sequence number.
package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matrixant/message-pack/codec"
	"github.com/matrixant/message-pack/dispatcher"
	"github.com/matrixant/message-pack/eventsink"
	"github.com/matrixant/message-pack/message"
	"github.com/matrixant/message-pack/middleware"
	"github.com/matrixant/message-pack/transport"
	"github.com/matrixant/message-pack/value"
)

const (
	inboundRingCapacity  = 8 * 1024 * 1024
	outboundRingCapacity = 8 * 1024 * 1024
	outboundQueueDepth   = 2048
	tickInterval         = 6900 * time.Microsecond
)

// SessionOptions configures the tunables a session's constructors accept.
// Its zero value is not directly usable — call DefaultSessionOptions and
// override individual fields, the way the teacher's constructors take a
// fully-populated argument struct rather than accreting optional
// parameters. Decode-side bounds (recursion depth, string/bin size caps)
// are not part of this struct: codec.DepthMax/StrMax/BinMax are fixed
// package constants shared by every session in a process, matching the
// teacher's own fixed wire-limit constants.
type SessionOptions struct {
	// InboundRingCapacity and OutboundRingCapacity size the byte rings the
	// pump reads into and writes out of.
	InboundRingCapacity  int
	OutboundRingCapacity int

	// OutboundQueueDepth bounds how many encoded-but-unsent messages
	// AsyncCall/SyncCall/Notify/WriteResponse may have queued at once
	// before enqueue fails with ErrQueueFull.
	OutboundQueueDepth int

	// TickInterval is how often the pump goroutine polls the transport and
	// retries a reconnect while disconnected.
	TickInterval time.Duration
}

// DefaultSessionOptions returns the tunables every RpcSession used before
// SessionOptions existed.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		InboundRingCapacity:  inboundRingCapacity,
		OutboundRingCapacity: outboundRingCapacity,
		OutboundQueueDepth:   outboundQueueDepth,
		TickInterval:         tickInterval,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.InboundRingCapacity <= 0 {
		o.InboundRingCapacity = d.InboundRingCapacity
	}
	if o.OutboundRingCapacity <= 0 {
		o.OutboundRingCapacity = d.OutboundRingCapacity
	}
	if o.OutboundQueueDepth <= 0 {
		o.OutboundQueueDepth = d.OutboundQueueDepth
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	return o
}

// outboundItem defers the actual Encode call to the pump goroutine, so
// building the wire bytes happens off whichever caller goroutine enqueued
// the message — matching the source design's "pop the queued RpcMessage,
// encode it in the pump" step instead of encoding at enqueue time.
type outboundItem struct {
	encode func() ([]byte, error)
}

type syncResult struct {
	result value.Value
	err    value.Value
}

// RpcSession owns exactly one transport, one pump goroutine, and the state
// that goroutine and callers share: the outbound queue, the sync-slot, and
// the handler tables (owned by the embedded Dispatcher).
type RpcSession struct {
	transport transport.StreamTransport
	inbound   *ringBuffer
	outbound  *ringBuffer
	parser    *codec.StreamParser

	outboundQueue chan outboundItem
	nextMsgID     uint32

	connected atomic.Bool
	running   atomic.Bool
	stopCh    chan struct{}
	pumpDone  chan struct{}

	// mu guards dispatch-time handler map access against concurrent
	// (Un)Register* calls from other goroutines. It is never held across
	// I/O, only across map/slot mutation, per the single-mutex rule.
	mu   sync.Mutex
	disp *dispatcher.Dispatcher

	syncMu       sync.Mutex
	syncArmed    bool
	syncTargetID uint32
	syncDone     chan syncResult

	sink eventsink.Sink
	host string
	port int
	opts SessionOptions

	// network/address and spare are set only by Connect; a session adopted
	// via Takeover has no dial target of its own to retry, so its
	// reconnect attempts are always no-ops.
	network string
	address string
	spare   *transport.SparePool

	// closeOnParseError, when true (the default), tears the transport
	// down as soon as the stream parser reaches Failed rather than
	// attempting to resynchronize — MessagePack has no frame delimiters
	// to resync on.
	closeOnParseError bool
}

// New builds an unconnected RpcSession. Call Connect or Takeover before
// using the caller API. opts is optional; omitting it is equivalent to
// passing DefaultSessionOptions(), and a zero field within a supplied
// SessionOptions falls back to its default individually.
func New(sink eventsink.Sink, opts ...SessionOptions) *RpcSession {
	o := DefaultSessionOptions()
	if len(opts) > 0 {
		o = opts[0].withDefaults()
	}
	s := &RpcSession{
		inbound:           newRingBuffer(o.InboundRingCapacity),
		outbound:          newRingBuffer(o.OutboundRingCapacity),
		parser:            codec.NewStreamParser(),
		outboundQueue:     make(chan outboundItem, o.OutboundQueueDepth),
		sink:              sink,
		opts:              o,
		closeOnParseError: true,
	}
	s.disp = dispatcher.New(sink, s, s)
	return s
}

// RegisterExt installs an application-defined extension-type decoder for
// this session's inbound stream parser.
func (s *RpcSession) RegisterExt(typeID int8, decoder codec.ExtDecoderFunc) {
	s.parser.RegisterExt(typeID, decoder)
}

// Connected reports whether the transport is currently usable.
func (s *RpcSession) Connected() bool { return s.connected.Load() }

// Connect dials network/address with backoff, then starts the pump. It also
// arms a one-slot warm spare connection pool for the same target, so a
// later reconnect (see reconnect in pump.go) can skip the dial entirely
// when the pool already has a connection ready.
func (s *RpcSession) Connect(network, address string) error {
	conn, err := transport.DialWithBackoff(network, address, transport.BackoffSchedule)
	if err != nil {
		return ErrCantConnect
	}
	host, portStr, splitErr := net.SplitHostPort(address)
	port := 0
	if splitErr == nil {
		if p, convErr := parsePort(portStr); convErr == nil {
			port = p
		}
	} else {
		host = address
	}
	s.network = network
	s.address = address
	s.spare = transport.NewSparePool(network, address)
	s.spare.Warm()
	return s.start(transport.NewTCPTransport(conn), host, port)
}

// Takeover adopts an already-connected transport (a hot-swapped socket, or
// one obtained via DialViaRegistry) without going through Connect's own
// dial-with-backoff path.
func (s *RpcSession) Takeover(t transport.StreamTransport, host string, port int) error {
	return s.start(t, host, port)
}

func (s *RpcSession) start(t transport.StreamTransport, host string, port int) error {
	s.transport = t
	s.host = host
	s.port = port
	s.connected.Store(true)
	s.running.Store(true)
	s.stopCh = make(chan struct{})
	s.pumpDone = make(chan struct{})

	go s.pump()

	s.sink.Emit(eventsink.Event{Kind: eventsink.Connected, Host: host, Port: port})
	return nil
}

// Close stops the pump, disconnects the transport, and emits Disconnected.
// It is idempotent: closing an already-closed session is a no-op.
func (s *RpcSession) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stopCh)
	<-s.pumpDone

	var err error
	if s.transport != nil {
		err = s.transport.Close()
	}
	if s.spare != nil {
		s.spare.Close()
	}
	s.connected.Store(false)
	s.sink.Emit(eventsink.Event{Kind: eventsink.Disconnected, Host: s.host, Port: s.port})
	return err
}

// AsyncCall enqueues a Request and returns immediately with its msgid. It
// never blocks on I/O; ErrQueueFull is returned if the outbound queue is
// at capacity, ErrDisconnected if the transport is down.
func (s *RpcSession) AsyncCall(method string, params []value.Value) (uint32, error) {
	if !s.connected.Load() {
		return 0, ErrDisconnected
	}
	msgid := atomic.AddUint32(&s.nextMsgID, 1)
	err := s.enqueue(outboundItem{encode: func() ([]byte, error) {
		return message.MakeRequest(msgid, method, params)
	}})
	if err != nil {
		return 0, err
	}
	return msgid, nil
}

// SyncCall sends a Request and blocks the calling goroutine until either a
// correlated Response arrives or timeout elapses. Only one SyncCall may be
// in flight per session; a concurrent attempt fails fast with ErrBusy.
func (s *RpcSession) SyncCall(method string, params []value.Value, timeout time.Duration) (result, errVal value.Value, err error) {
	if !s.connected.Load() {
		return value.Value{}, value.Value{}, ErrDisconnected
	}

	s.syncMu.Lock()
	if s.syncArmed {
		s.syncMu.Unlock()
		return value.Value{}, value.Value{}, ErrBusy
	}
	msgid := atomic.AddUint32(&s.nextMsgID, 1)
	done := make(chan syncResult, 1)
	s.syncArmed = true
	s.syncTargetID = msgid
	s.syncDone = done
	s.syncMu.Unlock()

	disarm := func() {
		s.syncMu.Lock()
		if s.syncArmed && s.syncTargetID == msgid {
			s.syncArmed = false
			s.syncDone = nil
		}
		s.syncMu.Unlock()
	}

	if enqErr := s.enqueue(outboundItem{encode: func() ([]byte, error) {
		return message.MakeRequest(msgid, method, params)
	}}); enqErr != nil {
		disarm()
		return value.Value{}, value.Value{}, enqErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.result, res.err, nil
	case <-timer.C:
		disarm()
		return value.Value{}, value.Value{}, ErrTimeout
	}
}

// Resolve implements dispatcher.ResponseCorrelator: it matches an inbound
// Response against the armed sync-slot and wakes the blocked SyncCall.
func (s *RpcSession) Resolve(msgid uint32, result, errVal value.Value) bool {
	s.syncMu.Lock()
	if !s.syncArmed || s.syncTargetID != msgid {
		s.syncMu.Unlock()
		return false
	}
	done := s.syncDone
	s.syncArmed = false
	s.syncDone = nil
	s.syncMu.Unlock()

	done <- syncResult{result: result, err: errVal}
	return true
}

// WriteResponse implements dispatcher.ReplyWriter by enqueueing a Response
// message; it is how both Response/ResponseError and registered-handler
// replies reach the wire.
func (s *RpcSession) WriteResponse(msgid uint32, result, errVal value.Value) error {
	return s.enqueue(outboundItem{encode: func() ([]byte, error) {
		return message.MakeResponse(msgid, result, errVal)
	}})
}

// Response replies to msgid with a successful result.
func (s *RpcSession) Response(msgid uint32, result value.Value) error {
	return s.WriteResponse(msgid, result, value.Nil())
}

// ResponseError replies to msgid with a failed result.
func (s *RpcSession) ResponseError(msgid uint32, errVal value.Value) error {
	return s.WriteResponse(msgid, value.Nil(), errVal)
}

// Notify enqueues a fire-and-forget Notification.
func (s *RpcSession) Notify(method string, params []value.Value) error {
	return s.enqueue(outboundItem{encode: func() ([]byte, error) {
		return message.MakeNotification(method, params)
	}})
}

func (s *RpcSession) enqueue(item outboundItem) error {
	select {
	case s.outboundQueue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// RegisterRequest installs handler for method. With overwrite=false, an
// existing registration for the same method fails with ErrAlreadyExists.
func (s *RpcSession) RegisterRequest(method string, handler dispatcher.RequestHandler, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !overwrite && s.disp.RequestRegistered(method) {
		return ErrAlreadyExists
	}
	s.disp.RegisterRequest(method, handler)
	return nil
}

// RegisterRequestFunc installs handler for method, wrapped by chain (pass
// nil to install unwrapped). Unlike RegisterRequest, handler follows the
// middleware.Handler shape (context, method, params) -> (result, errVal)
// and always replies synchronously as soon as it returns — this is the
// entry point for the common case of a request-answering method that
// wants logging, a timeout, a rate limit, or a retry policy in front of
// it; a handler that needs to control reply timing itself should call
// RegisterRequest directly instead.
func (s *RpcSession) RegisterRequestFunc(method string, handler middleware.Handler, chain middleware.Middleware, overwrite bool) error {
	wrapped := handler
	if chain != nil {
		wrapped = chain(handler)
	}
	return s.RegisterRequest(method, func(msgid uint32, params []value.Value, reply func(result, errVal value.Value)) {
		result, errVal := wrapped(context.Background(), method, params)
		reply(result, errVal)
	}, overwrite)
}

// RegisterNotification installs handler for method. With overwrite=false,
// an existing registration for the same method fails with ErrAlreadyExists.
func (s *RpcSession) RegisterNotification(method string, handler dispatcher.NotificationHandler, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !overwrite && s.disp.NotificationRegistered(method) {
		return ErrAlreadyExists
	}
	s.disp.RegisterNotification(method, handler)
	return nil
}

// UnregisterRequest removes the Request handler for method, if any.
func (s *RpcSession) UnregisterRequest(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disp.RequestRegistered(method) {
		return ErrNotFound
	}
	s.disp.RegisterRequest(method, nil)
	return nil
}

// UnregisterNotification removes the Notification handler for method, if any.
func (s *RpcSession) UnregisterNotification(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.disp.NotificationRegistered(method) {
		return ErrNotFound
	}
	s.disp.RegisterNotification(method, nil)
	return nil
}

func parsePort(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrInvalidParameter
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
