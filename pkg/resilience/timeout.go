package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports that an operation exceeded its limit. It matches
// context.DeadlineExceeded with errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %v (limit: %v)", e.Op, context.DeadlineExceeded, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout runs fn with a derived context that is cancelled after timeout.
// A non-positive timeout runs fn with ctx unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is WithTimeout for functions that produce a value. When the limit is
// hit Call returns immediately with a *TimeoutError; fn keeps running until it
// observes its cancelled context and its result is discarded.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- result{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return zero, &TimeoutError{Op: name, Limit: timeout}
	}
}
