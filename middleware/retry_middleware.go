package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/matrixant/message-pack/value"
)

// RetryMiddleware retries next with exponential backoff when its error
// result looks transient (a timeout or a refused connection). Any other
// error, or success, returns immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params []value.Value) (result, errVal value.Value) {
			result, errVal = next(ctx, method, params)
			for i := 0; i < maxRetries; i++ {
				if errVal.IsNil() {
					return result, errVal
				}
				msg := errVal.String()
				if !strings.Contains(msg, "timeout") && !strings.Contains(msg, "connection refused") {
					return result, errVal
				}
				log.Printf("retry attempt %d for %s due to error: %s", i+1, method, msg)
				time.Sleep(baseDelay * time.Duration(1<<i))
				result, errVal = next(ctx, method, params)
			}
			return result, errVal
		}
	}
}
