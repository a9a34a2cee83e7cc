package fn

import (
	"context"
	"time"
)

// Backoff returns how long to wait after the given failed attempt (1-based)
// before the next one is made.
type Backoff func(attempt int) time.Duration

// Linear waits unit*attempt: unit after the first failure, 2*unit after the
// second, and so on.
func Linear(unit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return unit * time.Duration(attempt)
	}
}

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	Backoff     Backoff
	// Sleep is swapped out in tests. Nil uses SleepContext.
	Sleep func(context.Context, time.Duration) error
}

// Retry calls f until it returns an Ok result or MaxAttempts is reached.
// The last failed result is returned when attempts run out; a cancelled
// context during a wait ends the loop with ctx.Err().
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var result Result[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return Err[T](ctx.Err())
		}

		var wait time.Duration
		if opts.Backoff != nil {
			wait = opts.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return Err[T](err)
		}
	}
	return result
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
