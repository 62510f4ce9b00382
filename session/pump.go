package session

import (
	"errors"
	"net"
	"time"

	"github.com/matrixant/message-pack/codec"
	"github.com/matrixant/message-pack/eventsink"
	"github.com/matrixant/message-pack/message"
	"github.com/matrixant/message-pack/transport"
	"github.com/matrixant/message-pack/value"
)

// deadlineSetter is implemented by transports (TCPTransport does) that can
// bound a single Read/Write call so the pump's tick cadence isn't at the
// mercy of a transport that blocks indefinitely.
type deadlineSetter interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

func (s *RpcSession) pump() {
	defer close(s.pumpDone)
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		s.writeOut()
		s.readIn()
		s.parseIn()
		s.refreshConnected()

		if !s.running.Load() {
			return
		}
		if !s.connected.Load() && !s.reconnect() {
			return
		}

		select {
		case <-ticker.C:
		case <-s.stopCh:
			return
		}
	}
}

// reconnect is tried once per tick while the transport is down. It first
// takes a pre-dialed connection from the warm spare pool if one is ready,
// falling back to a fresh backoff dial only when the pool is empty. A
// session adopted via Takeover (no network/address of its own) never
// reconnects: it reports the loss and lets the pump exit.
func (s *RpcSession) reconnect() bool {
	if s.network == "" {
		return false
	}

	var conn net.Conn
	if spareConn, ok := s.spare.Take(); ok {
		conn = spareConn
	} else {
		dialed, err := transport.DialWithBackoff(s.network, s.address, transport.BackoffSchedule)
		if err != nil {
			return false
		}
		conn = dialed
	}

	s.transport = transport.NewTCPTransport(conn)
	s.connected.Store(true)
	s.spare.Warm()
	s.sink.Emit(eventsink.Event{Kind: eventsink.Connected, Host: s.host, Port: s.port})
	return true
}

// writeOut drains the outbound RpcMessage queue into the outbound byte
// ring, encoding lazily, then writes as much of the ring as the transport
// will currently accept.
func (s *RpcSession) writeOut() {
	if dl, ok := s.transport.(deadlineSetter); ok {
		dl.SetWriteDeadline(time.Now().Add(s.opts.TickInterval))
	}

	for s.outbound.Len() == 0 {
		select {
		case item := <-s.outboundQueue:
			buf, err := item.encode()
			if err != nil {
				s.sink.Emit(eventsink.Event{Kind: eventsink.GotError, Err: err})
				continue
			}
			if n := s.outbound.Write(buf); n < len(buf) {
				s.sink.Emit(eventsink.Event{Kind: eventsink.GotError, Err: errOutboundTooLarge})
			}
		default:
			return
		}
	}

	for s.outbound.Len() > 0 {
		n, err := s.transport.Write(s.outbound.Peek())
		if n > 0 {
			s.outbound.Consume(n)
		}
		if err != nil {
			if isTimeoutErr(err) {
				return
			}
			s.connected.Store(false)
			return
		}
		if n == 0 {
			return
		}
	}
}

var errOutboundTooLarge = errors.New("session: encoded message exceeds outbound ring capacity")

// readIn pulls bytes from the transport into the inbound ring, bounded by
// however much free space remains.
func (s *RpcSession) readIn() {
	space := s.inbound.TailSpace()
	if len(space) == 0 {
		return
	}

	if dl, ok := s.transport.(deadlineSetter); ok {
		dl.SetReadDeadline(time.Now().Add(s.opts.TickInterval))
	}

	n, err := s.transport.Read(space)
	if n > 0 {
		s.inbound.Advance(n)
	}
	if err != nil && !isTimeoutErr(err) {
		s.connected.Store(false)
	}
}

// parseIn feeds newly-read bytes to the stream parser and dispatches every
// completed value, stopping at WouldBlock. A parse failure is terminal for
// the parser and, per policy, for the connection: MessagePack carries no
// frame delimiters to resynchronize on.
func (s *RpcSession) parseIn() {
	if pending := s.inbound.Peek(); len(pending) > 0 {
		s.parser.Feed(pending)
		s.inbound.Consume(len(pending))
	}

	for {
		res := s.parser.TryParse()
		switch res.Status {
		case codec.StatusReady:
			s.sink.Emit(eventsink.Event{Kind: eventsink.MessageReceived, Value: res.Value})
			s.dispatchValue(res.Value)
		case codec.StatusWouldBlock:
			return
		case codec.StatusErr:
			s.sink.Emit(eventsink.Event{Kind: eventsink.GotError, Err: res.Err})
			s.parser.Reset()
			if s.closeOnParseError {
				s.transport.Close()
				s.connected.Store(false)
			}
			return
		}
	}
}

func (s *RpcSession) dispatchValue(v value.Value) {
	msg, err := message.Parse(v)
	if err != nil {
		s.sink.Emit(eventsink.Event{Kind: eventsink.GotError, Err: err})
		return
	}
	s.mu.Lock()
	s.disp.Dispatch(msg)
	s.mu.Unlock()
}

func (s *RpcSession) refreshConnected() {
	if !s.transport.Connected() {
		s.connected.Store(false)
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
