// Package resilience guards calls to the graph store with a circuit breaker
// and paces the ingest consumer with a token bucket.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/manualkg/pkg/fn"
)

// State is the position of a Breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without calling through while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker. Zero fields take DefaultBreakerOpts.
type BreakerOpts struct {
	// FailThreshold consecutive failures open the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// HalfOpenMax probe calls are let through while half-open.
	HalfOpenMax int
	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts suits a single Neo4j instance.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker is a closed / open / half-open circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	opts     BreakerOpts
	state    State
	failures int
	openedAt time.Time
	probes   int
	now      func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state, moving open to half-open once the
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	st, changed := b.refresh()
	b.mu.Unlock()
	if changed {
		b.notify(StateOpen, StateHalfOpen)
	}
	return st
}

// refresh must be called with mu held.
func (b *Breaker) refresh() (State, bool) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.probes = 0
		return b.state, true
	}
	return b.state, false
}

func (b *Breaker) notify(from, to State) {
	if b.opts.OnStateChange != nil && from != to {
		b.opts.OnStateChange(from, to)
	}
}

// acquire reports whether a call may proceed.
func (b *Breaker) acquire() bool {
	b.mu.Lock()
	st, changed := b.refresh()
	ok := true
	switch st {
	case StateOpen:
		ok = false
	case StateHalfOpen:
		if b.probes >= b.opts.HalfOpenMax {
			ok = false
		} else {
			b.probes++
		}
	}
	b.mu.Unlock()
	if changed {
		b.notify(StateOpen, StateHalfOpen)
	}
	return ok
}

// record feeds the outcome of a call back into the breaker.
func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	from := b.state
	if failed {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.failures = 0
			b.probes = 0
		}
	} else {
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		b.failures = 0
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// Call runs f unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}
	err := f(ctx)
	b.record(err != nil)
	return err
}

// CallResult is Call for functions returning an fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if !b.acquire() {
		return fn.Err[T](ErrCircuitOpen)
	}
	res := f(ctx)
	b.record(res.IsErr())
	return res
}

// BreakerStage puts stage behind b.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
