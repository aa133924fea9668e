package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy(attempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = attempts
	p.sleep = noSleep
	return p
}

func TestDo_retriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := testPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_exhaustsAttempts(t *testing.T) {
	calls := 0
	want := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
	err := testPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, want)
}

func TestDo_clientErrorNotRetried(t *testing.T) {
	calls := 0
	err := testPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_permanentNotRetried(t *testing.T) {
	sentinel := errors.New("bad vector")
	calls := 0
	err := testPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, sentinel, err)
	assert.False(t, IsPermanent(err))
}

func TestDo_perAttemptTimeout(t *testing.T) {
	p := testPolicy(2)
	p.Timeout = 10 * time.Millisecond
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_parentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := testPolicy(5).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("flaky")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelay_cappedAndGrowing(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.delay(0))
	assert.Equal(t, 200*time.Millisecond, p.delay(1))
	assert.Equal(t, time.Second, p.delay(10))

	p.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(context.Canceled))
	assert.True(t, Transient(&openai.APIError{HTTPStatusCode: 502}))
	assert.False(t, Transient(&openai.APIError{HTTPStatusCode: 400}))
	assert.False(t, Transient(nil))
}

func TestLimiter_nilNeverBlocks(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Wait(context.Background()))
	assert.Nil(t, NewLimiter(0, 1))
	assert.NotNil(t, NewLimiter(5, 0))
}
