package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/matrixant/message-pack/value"
)

// RateLimitMiddleware rejects Requests once the token bucket (rate r per
// second, burst capacity) is exhausted, instead of forwarding to next.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params []value.Value) (result, errVal value.Value) {
			if !limiter.Allow() {
				return value.Nil(), value.Str("rate limit exceeded")
			}
			return next(ctx, method, params)
		}
	}
}
