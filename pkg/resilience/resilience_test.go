package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 502")

type transition struct{ from, to State }

func newTestBreaker(threshold int) (*CircuitBreaker, *time.Time, *[]transition) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var seen []transition
	cb := NewCircuitBreaker("geocoder", CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to State) {
			seen = append(seen, transition{from, to})
		},
	})
	cb.now = func() time.Time { return clock }
	return cb, &clock, &seen
}

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _, seen := newTestBreaker(3)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, 3, cb.Counts().ConsecutiveFailures)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []transition{{StateClosed, StateOpen}}, *seen)
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _, _ := newTestBreaker(2)

	cb.Execute(fail)
	require.NoError(t, cb.Execute(succeed))
	cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clock, seen := newTestBreaker(1)

	cb.Execute(fail)
	require.Equal(t, StateOpen, cb.GetState())

	*clock = clock.Add(time.Minute)
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, *seen)
}

func TestCircuitBreakerHalfOpenTrialFails(t *testing.T) {
	cb, clock, _ := newTestBreaker(1)

	cb.Execute(fail)
	*clock = clock.Add(time.Minute)
	assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _, _ := newTestBreaker(1)

	err := cb.Execute(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _, seen := newTestBreaker(1)
	cb.Execute(fail)
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Len(t, *seen, 2)
}

func TestRetrySucceedsEventually(t *testing.T) {
	var attempts atomic.Int32
	err := Retry(context.Background(), "postgres-ping", RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
	}, func() error {
		if attempts.Add(1) < 3 {
			return errUpstream
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "postgres-ping", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "postgres-ping", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errUpstream)
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = Retry(context.Background(), "postgres-ping", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errUpstream) },
	}, func() error {
		attempts++
		return errUpstream
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, "postgres-ping", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		attempts++
		cancel()
		return errUpstream
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryDelayBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		JitterFraction: -1,
	}.withDefaults()

	assert.Equal(t, 100*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 400*time.Millisecond, cfg.delay(3))
	assert.Equal(t, time.Second, cfg.delay(10))

	jittered := RetryConfig{InitialDelay: 100 * time.Millisecond}.withDefaults()
	for i := 0; i < 20; i++ {
		d := jittered.delay(1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestCallReturnsValue(t *testing.T) {
	v, err := Call(context.Background(), time.Second, "geocoder", func(ctx context.Context) (string, error) {
		return "austin", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "austin", v)
}

func TestCallTimesOut(t *testing.T) {
	v, err := Call(context.Background(), 10*time.Millisecond, "geocoder", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 42, ctx.Err()
	})
	assert.Zero(t, v)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "geocoder", te.Op)
	assert.Equal(t, 10*time.Millisecond, te.Limit)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "geocoder", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutZeroRunsInline(t *testing.T) {
	err := WithTimeout(context.Background(), 0, "geocoder", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})
	assert.NoError(t, err)
}
