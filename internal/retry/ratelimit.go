package retry

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by all calls to one external capability.
// A nil Limiter never blocks.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter returns a limiter allowing requestsPerSecond with the given burst.
// Returns nil when requestsPerSecond is zero or negative.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
