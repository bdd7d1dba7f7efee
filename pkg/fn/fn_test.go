package fn

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	v, err := Ok("MFL71485465").Unwrap()
	if err != nil || v != "MFL71485465" {
		t.Fatalf("Ok: got %q, %v", v, err)
	}
	r := Err[string](errors.New("boom"))
	if !r.IsErr() {
		t.Fatal("Err should report IsErr")
	}
	if v, _ := r.Unwrap(); v != "" {
		t.Fatalf("Err value should be zero, got %q", v)
	}
	if FromPair(3, nil).IsErr() {
		t.Fatal("FromPair with nil error should be ok")
	}
	if !FromPair(3, errors.New("x")).IsErr() {
		t.Fatal("FromPair with error should fail")
	}
}

func TestThen(t *testing.T) {
	parse := Stage[string, []string](func(_ context.Context, s string) Result[[]string] {
		if s == "" {
			return Err[[]string](errors.New("empty"))
		}
		return Ok(strings.Fields(s))
	})
	called := false
	count := Stage[[]string, int](func(_ context.Context, ws []string) Result[int] {
		called = true
		return Ok(len(ws))
	})
	pipeline := Then(parse, count)

	if n, err := pipeline(context.Background(), "drain pump clogged").Unwrap(); err != nil || n != 3 {
		t.Fatalf("got %d, %v", n, err)
	}
	called = false
	if _, err := pipeline(context.Background(), "").Unwrap(); err == nil || err.Error() != "empty" {
		t.Fatalf("expected first stage error, got %v", err)
	}
	if called {
		t.Fatal("second stage must not run after a failure")
	}
}

func TestTracedStage(t *testing.T) {
	boom := errors.New("boom")
	s := TracedStage("test.stage", func(_ context.Context, n int) Result[int] {
		if n < 0 {
			return Err[int](boom)
		}
		return Ok(n * 2)
	})
	if v, err := s(context.Background(), 2).Unwrap(); err != nil || v != 4 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := s(context.Background(), -1).Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	res := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		if calls.Add(1) < 3 {
			return Err[string](errors.New("transient"))
		}
		return Ok("done")
	})
	if v, err := res.Unwrap(); err != nil || v != "done" {
		t.Fatalf("got %q, %v", v, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	res := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, Jitter: true}, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("still down"))
	})
	if _, err := res.Unwrap(); err == nil || err.Error() != "still down" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), RetryOpts{}, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("x"))
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_NotRetryable(t *testing.T) {
	fatal := errors.New("bad shape")
	calls := 0
	opts := RetryOpts{
		MaxAttempts: 5,
		InitialWait: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}
	Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](fatal)
	})
	if calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		calls++
		cancel()
		return Err[int](errors.New("x"))
	})
	if _, err := res.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_MaxWaitCapsBackoff(t *testing.T) {
	start := time.Now()
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Hour, MaxWait: 5 * time.Millisecond}
	Retry(context.Background(), opts, func(context.Context) Result[int] {
		return Err[int](errors.New("x"))
	})
	if time.Since(start) > time.Second {
		t.Fatal("MaxWait should cap the backoff")
	}
}

func TestRetryStage(t *testing.T) {
	calls := 0
	s := RetryStage(RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(_ context.Context, in string) Result[string] {
		calls++
		if calls == 1 {
			return Err[string](errors.New("transient"))
		}
		return Ok(in + "!")
	})
	if v, err := s(context.Background(), "ok").Unwrap(); err != nil || v != "ok!" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestFilter(t *testing.T) {
	out := Filter([]string{"troubleshooting", "", "operation"}, func(s string) bool { return s != "" })
	if len(out) != 2 || out[0] != "troubleshooting" || out[1] != "operation" {
		t.Fatalf("got %v", out)
	}
	if Filter([]int{1, 3}, func(v int) bool { return v%2 == 0 }) != nil {
		t.Fatal("no matches should give nil")
	}
}

func TestChunk(t *testing.T) {
	c := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(c) != 3 || len(c[2]) != 1 || c[2][0] != 5 {
		t.Fatalf("got %v", c)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("n <= 0 should give nil")
	}
	if Chunk([]int{}, 3) != nil {
		t.Fatal("empty input should give nil")
	}
}

func TestUnique(t *testing.T) {
	out := Unique([]string{"WM3500C", "WM3501H", "WM3500C"})
	if len(out) != 2 || out[0] != "WM3500C" || out[1] != "WM3501H" {
		t.Fatalf("got %v", out)
	}
}

func TestParMap_OrderAndBound(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	var running, peak atomic.Int32
	out := ParMap(items, 4, func(v int) int {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return v * v
	})
	for i, v := range out {
		if v != i*i {
			t.Fatalf("out[%d] = %d", i, v)
		}
	}
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 workers, saw %d", peak.Load())
	}
}

func TestParMap_Empty(t *testing.T) {
	if out := ParMap([]int{}, 0, func(v int) int { return v }); len(out) != 0 {
		t.Fatalf("got %v", out)
	}
	out := ParMap([]int{1, 2}, 0, func(v int) int { return v + 1 })
	if out[0] != 2 || out[1] != 3 {
		t.Fatalf("got %v", out)
	}
}
