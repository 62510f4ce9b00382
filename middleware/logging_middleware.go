package middleware

import (
	"context"
	"log"
	"time"

	"github.com/matrixant/message-pack/value"
)

// LoggingMiddleware logs the method name, handling duration, and any
// returned error value for every Request that passes through it.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params []value.Value) (result, errVal value.Value) {
			start := time.Now()
			result, errVal = next(ctx, method, params)
			log.Printf("method: %s, duration: %s", method, time.Since(start))
			if !errVal.IsNil() {
				log.Printf("error: %s", errVal.String())
			}
			return result, errVal
		}
	}
}
