package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/matrixant/message-pack/value"
)

func echoHandler(ctx context.Context, method string, params []value.Value) (value.Value, value.Value) {
	return value.Str("ok"), value.Nil()
}

func slowHandler(ctx context.Context, method string, params []value.Value) (value.Value, value.Value) {
	time.Sleep(200 * time.Millisecond)
	return value.Str("ok"), value.Nil()
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware()(echoHandler)

	result, errVal := handler(context.Background(), "Arith.Add", nil)

	if !errVal.IsNil() {
		t.Fatalf("expect no error, got %s", errVal.String())
	}
	if s, _ := result.AsStr(); s != "ok" {
		t.Fatalf("expect result 'ok', got %q", s)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	_, errVal := handler(context.Background(), "Arith.Add", nil)

	if !errVal.IsNil() {
		t.Fatalf("expect no error, got %s", errVal.String())
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	_, errVal := handler(context.Background(), "Arith.Add", nil)

	s, _ := errVal.AsStr()
	if s != "request timed out" {
		t.Fatalf("expect timeout error, got %q", s)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1/s, burst=2: first two calls pass immediately, third is rejected.
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		_, errVal := handler(context.Background(), "Arith.Add", nil)
		if !errVal.IsNil() {
			t.Fatalf("request %d should pass, got error: %s", i, errVal.String())
		}
	}

	_, errVal := handler(context.Background(), "Arith.Add", nil)
	s, _ := errVal.AsStr()
	if s != "rate limit exceeded" {
		t.Fatalf("request 3 should be rate limited, got %q", s)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(), TimeOutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)

	result, errVal := handler(context.Background(), "Arith.Add", nil)

	if !errVal.IsNil() {
		t.Fatalf("expect no error, got %s", errVal.String())
	}
	if s, _ := result.AsStr(); s != "ok" {
		t.Fatalf("expect result 'ok', got %q", s)
	}
}
