package session

import (
	"net"
	"testing"
	"time"

	"github.com/matrixant/message-pack/eventsink"
	"github.com/matrixant/message-pack/transport"
	"github.com/matrixant/message-pack/value"
)

func pairedSessions(t *testing.T) (a, b *RpcSession) {
	t.Helper()
	connA, connB := net.Pipe()

	a = New(eventsink.SyncSink{})
	b = New(eventsink.SyncSink{})

	if err := a.Takeover(transport.NewTCPTransport(connA), "a", 0); err != nil {
		t.Fatalf("takeover a: %v", err)
	}
	if err := b.Takeover(transport.NewTCPTransport(connB), "b", 0); err != nil {
		t.Fatalf("takeover b: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestSyncCallRoundTrip(t *testing.T) {
	a, b := pairedSessions(t)

	b.RegisterRequest("sum", func(msgid uint32, params []value.Value, reply func(result, errVal value.Value)) {
		x, _ := params[0].AsInt()
		y, _ := params[1].AsInt()
		reply(value.Int(x+y), value.Nil())
	}, false)

	result, errVal, err := a.SyncCall("sum", []value.Value{value.Int(2), value.Int(3)}, 2*time.Second)
	if err != nil {
		t.Fatalf("SyncCall: %v", err)
	}
	if !errVal.IsNil() {
		t.Fatalf("expect no rpc error, got %s", errVal.String())
	}
	sum, ok := result.AsInt()
	if !ok || sum != 5 {
		t.Fatalf("expect result 5, got %v", result)
	}
}

func TestSyncCallSecondInFlightFailsWithBusy(t *testing.T) {
	a, b := pairedSessions(t)

	block := make(chan struct{})
	b.RegisterRequest("wait", func(msgid uint32, params []value.Value, reply func(result, errVal value.Value)) {
		<-block
		reply(value.Nil(), value.Nil())
	}, false)

	go a.SyncCall("wait", nil, 2*time.Second)
	// Give the first call a moment to arm the sync slot before the second
	// one races it.
	time.Sleep(50 * time.Millisecond)

	_, _, err := a.SyncCall("wait", nil, 100*time.Millisecond)
	if err != ErrBusy {
		t.Fatalf("expect ErrBusy, got %v", err)
	}
	close(block)
}

func TestAsyncCallDeliversRequestEvent(t *testing.T) {
	sinkA := eventsink.NewChannelSink(16)
	connA, connB := net.Pipe()

	a := New(sinkA)
	b := New(eventsink.SyncSink{})
	if err := a.Takeover(transport.NewTCPTransport(connA), "a", 0); err != nil {
		t.Fatalf("takeover a: %v", err)
	}
	if err := b.Takeover(transport.NewTCPTransport(connB), "b", 0); err != nil {
		t.Fatalf("takeover b: %v", err)
	}
	defer a.Close()
	defer b.Close()

	if _, err := b.AsyncCall("ping", []value.Value{value.Str("hi")}); err != nil {
		t.Fatalf("AsyncCall: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		for _, ev := range sinkA.Drain() {
			if ev.Kind == eventsink.RequestReceived && ev.Method == "ping" {
				found = true
			}
		}
		if found {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !found {
		t.Fatal("expected a RequestReceived event for ping")
	}
}

func TestNotifyDeliversNotificationEvent(t *testing.T) {
	sinkA := eventsink.NewChannelSink(16)
	connA, connB := net.Pipe()

	a := New(sinkA)
	b := New(eventsink.SyncSink{})
	if err := a.Takeover(transport.NewTCPTransport(connA), "a", 0); err != nil {
		t.Fatalf("takeover a: %v", err)
	}
	if err := b.Takeover(transport.NewTCPTransport(connB), "b", 0); err != nil {
		t.Fatalf("takeover b: %v", err)
	}
	defer a.Close()
	defer b.Close()

	if err := b.Notify("tick", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		for _, ev := range sinkA.Drain() {
			if ev.Kind == eventsink.NotificationReceived && ev.Method == "tick" {
				found = true
			}
		}
		if found {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !found {
		t.Fatal("expected a NotificationReceived event for tick")
	}
}

func TestNotifyEmitsMessageReceivedForRawValue(t *testing.T) {
	sinkA := eventsink.NewChannelSink(16)
	connA, connB := net.Pipe()

	a := New(sinkA)
	b := New(eventsink.SyncSink{})
	if err := a.Takeover(transport.NewTCPTransport(connA), "a", 0); err != nil {
		t.Fatalf("takeover a: %v", err)
	}
	if err := b.Takeover(transport.NewTCPTransport(connB), "b", 0); err != nil {
		t.Fatalf("takeover b: %v", err)
	}
	defer a.Close()
	defer b.Close()

	if err := b.Notify("tick", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var found bool
	for time.Now().Before(deadline) {
		for _, ev := range sinkA.Drain() {
			if ev.Kind == eventsink.MessageReceived {
				arr, ok := ev.Value.AsArray()
				if !ok || len(arr) < 2 {
					t.Fatalf("expect MessageReceived to carry the decoded array, got %v", ev.Value)
				}
				found = true
			}
		}
		if found {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !found {
		t.Fatal("expected a MessageReceived event for the raw decoded notification value")
	}
}

func TestRegisterRequestRejectsDuplicateWithoutOverwrite(t *testing.T) {
	a, _ := pairedSessions(t)

	h := func(msgid uint32, params []value.Value, reply func(result, errVal value.Value)) { reply(value.Nil(), value.Nil()) }
	if err := a.RegisterRequest("dup", h, false); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := a.RegisterRequest("dup", h, false); err != ErrAlreadyExists {
		t.Fatalf("expect ErrAlreadyExists, got %v", err)
	}
	if err := a.RegisterRequest("dup", h, true); err != nil {
		t.Fatalf("overwrite register: %v", err)
	}
}

func TestSessionOptionsOverrideDefaultsPartially(t *testing.T) {
	a := New(eventsink.SyncSink{}, SessionOptions{OutboundQueueDepth: 1, TickInterval: time.Millisecond})

	if a.opts.OutboundQueueDepth != 1 {
		t.Fatalf("expect overridden OutboundQueueDepth 1, got %d", a.opts.OutboundQueueDepth)
	}
	if cap(a.outboundQueue) != 1 {
		t.Fatalf("expect outboundQueue sized to the overridden depth, got cap %d", cap(a.outboundQueue))
	}
	if a.opts.TickInterval != time.Millisecond {
		t.Fatalf("expect overridden TickInterval, got %v", a.opts.TickInterval)
	}
	if a.opts.InboundRingCapacity != inboundRingCapacity {
		t.Fatalf("expect unset InboundRingCapacity to fall back to the default, got %d", a.opts.InboundRingCapacity)
	}
	if a.opts.OutboundRingCapacity != outboundRingCapacity {
		t.Fatalf("expect unset OutboundRingCapacity to fall back to the default, got %d", a.opts.OutboundRingCapacity)
	}
}

func TestDefaultSessionOptionsMatchUnconfiguredSession(t *testing.T) {
	a := New(eventsink.SyncSink{})
	d := DefaultSessionOptions()
	if a.opts != d {
		t.Fatalf("expect New() with no options to equal DefaultSessionOptions(), got %+v vs %+v", a.opts, d)
	}
}

func TestCloseIsIdempotentAndStopsThePump(t *testing.T) {
	a, _ := pairedSessions(t)

	if err := a.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if a.Connected() {
		t.Fatal("expect Connected() false after Close")
	}
}
