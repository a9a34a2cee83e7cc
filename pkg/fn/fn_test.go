package fn

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() {
		t.Fatal("Err should be err")
	}
	if _, err := e.Unwrap(); err == nil || err.Error() != "fail" {
		t.Fatalf("expected fail, got %v", err)
	}
}

// --- Backoff ---

func TestLinear(t *testing.T) {
	b := Linear(100 * time.Millisecond)
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 300 * time.Millisecond} {
		if got := b(attempt); got != want {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

// --- Retry ---

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	var calls int
	rec := &recordingSleeper{}
	r := Retry(context.Background(), RetryOpts{
		MaxAttempts: 3,
		Backoff:     Linear(time.Second),
		Sleep:       rec.sleep,
	}, func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](fmt.Errorf("attempt %d failed", calls))
		}
		return Ok("body")
	})

	v, err := r.Unwrap()
	if err != nil || v != "body" {
		t.Fatalf("expected body, got %q (%v)", v, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Fatalf("expected waits [1s 2s], got %v", rec.waits)
	}
}

func TestRetryExhausted(t *testing.T) {
	var calls int
	rec := &recordingSleeper{}
	r := Retry(context.Background(), RetryOpts{
		MaxAttempts: 3,
		Backoff:     Linear(time.Millisecond),
		Sleep:       rec.sleep,
	}, func(context.Context) Result[int] {
		calls++
		return Err[int](fmt.Errorf("fail %d", calls))
	})
	_, err := r.Unwrap()
	if err == nil || err.Error() != "fail 3" {
		t.Fatalf("expected last error, got %v", err)
	}
	// No wait after the final attempt.
	if len(rec.waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(rec.waits))
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	var calls int
	Retry(context.Background(), RetryOpts{}, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("x"))
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, Backoff: Linear(time.Hour)}, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("x"))
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- ParMap ---

func TestParMapPreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out := ParMap(in, 3, func(i, v int) int {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v*10 + i
	})
	want := []int{50, 41, 32, 23, 14}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("index %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	ParMap(make([]int, 20), 4, func(int, int) int {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inflight.Add(-1)
		return 0
	})
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 in flight, got %d", peak.Load())
	}
}

func TestParMapSequentialAndEmpty(t *testing.T) {
	if out := ParMap([]int{}, 4, func(i, v int) int { return v }); len(out) != 0 {
		t.Fatal("expected empty output")
	}
	out := ParMap([]string{"a", "b"}, 1, func(i int, v string) string { return v + v })
	if out[0] != "aa" || out[1] != "bb" {
		t.Fatalf("unexpected output: %v", out)
	}
}
