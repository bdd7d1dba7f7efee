package resilience

import (
	"context"

	"github.com/WessleyAI/manualkg/pkg/fn"
	"golang.org/x/time/rate"
)

// LimiterOpts configures a token bucket.
type LimiterOpts struct {
	// Rate is tokens per second. Zero or less means unlimited.
	Rate float64
	// Burst is the bucket capacity, at least 1.
	Burst int
}

// Limiter paces work through a token bucket.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a full bucket.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Limit(opts.Rate)
	if opts.Rate <= 0 {
		limit = rate.Inf
	}
	return &Limiter{lim: rate.NewLimiter(limit, opts.Burst)}
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool { return l.lim.Allow() }

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error { return l.lim.Wait(ctx) }

// LimiterStage waits for a token before running stage.
func LimiterStage[In, Out any](l *Limiter, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if err := l.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
