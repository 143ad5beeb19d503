package assist

import (
	"context"

	"golang.org/x/time/rate"
)

// requestLimiter spaces model requests with a token bucket. It is shared by
// concurrent callers.
type requestLimiter struct {
	limiter *rate.Limiter
}

// newRequestLimiter allows requestsPerMin requests per minute with bursts of
// the same size. Zero or less disables limiting.
func newRequestLimiter(requestsPerMin int) *requestLimiter {
	rl := &requestLimiter{}
	if requestsPerMin > 0 {
		r := rate.Limit(float64(requestsPerMin) / 60.0)
		rl.limiter = rate.NewLimiter(r, requestsPerMin)
	}
	return rl
}

// Wait blocks until a request is allowed or ctx is done.
func (rl *requestLimiter) Wait(ctx context.Context) error {
	if rl.limiter == nil {
		return nil
	}
	return rl.limiter.Wait(ctx)
}
