// Package retry runs calls to external capabilities with bounded exponential backoff,
// per-attempt timeouts, and optional rate limiting.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// Policy configures retries for one kind of external call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction (0..1) of each delay that is randomized.
	Jitter float64
	// Timeout bounds a single attempt. Zero means no per-attempt deadline.
	Timeout time.Duration

	Limiter *Limiter
	Logger  *zap.Logger
	// Name labels log lines, e.g. "embedding".
	Name string

	sleep func(context.Context, time.Duration) error
}

// DefaultPolicy returns a policy with 4 attempts, backing off 200ms doubling up to 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
		Timeout:     30 * time.Second,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err so Do returns it immediately without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a non-transient error, or attempts run out.
// Each attempt gets its own context bounded by p.Timeout. The last error is returned unwrapped
// of the Permanent marker.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if serr := sleep(ctx, p.delay(attempt-1)); serr != nil {
				return serr
			}
		}
		if p.Limiter != nil {
			if lerr := p.Limiter.Wait(ctx); lerr != nil {
				return lerr
			}
		}
		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
		if !Transient(err) {
			return err
		}
		logger.Debug("retrying call",
			zap.String("call", p.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(actx)
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		j := p.Jitter
		if j > 1 {
			j = 1
		}
		spread := float64(d) * j
		d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transient reports whether err is worth retrying: timeouts, network failures,
// rate limiting, and 5xx responses from OpenAI or Google APIs. Client errors are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return transientStatus(gErr.Code)
	}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.StatusCode())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unknown errors from black-box clients are retried; callers mark known-fatal ones Permanent.
	return true
}

func transientStatus(code int) bool {
	switch {
	case code == 0:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
