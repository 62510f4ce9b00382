package middleware

import (
	"context"
	"time"

	"github.com/matrixant/message-pack/value"
)

// TimeOutMiddleware bounds how long next may take to answer a Request. On
// expiry it returns an error result immediately; the underlying handler
// goroutine is left to finish on its own, since a RequestHandler has no
// cancellation hook to interrupt it.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params []value.Value) (result, errVal value.Value) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result, errVal value.Value
			}
			done := make(chan outcome, 1)
			go func() {
				r, e := next(ctx, method, params)
				done <- outcome{r, e}
			}()

			select {
			case out := <-done:
				return out.result, out.errVal
			case <-ctx.Done():
				return value.Nil(), value.Str("request timed out")
			}
		}
	}
}
