package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures exponential backoff.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	// Jitter scales every wait by a random factor in [0.5, 1.5).
	Jitter bool
	// Retryable, if set, stops retrying errors it returns false for.
	Retryable func(error) bool
}

// Retry calls f until it succeeds, MaxAttempts is reached, the error is not
// retryable or ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	wait := opts.InitialWait
	var res Result[T]
	for attempt := 1; ; attempt++ {
		res = f(ctx)
		_, err := res.Unwrap()
		if err == nil || attempt == attempts {
			return res
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return res
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 {
			sleep = min(sleep, opts.MaxWait)
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return Err[T](ctx.Err())
		case <-t.C:
		}
		wait *= 2
		if opts.MaxWait > 0 {
			wait = min(wait, opts.MaxWait)
		}
	}
}

// RetryStage retries stage with opts.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
