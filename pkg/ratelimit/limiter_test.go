package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock advances only when the limiter sleeps or the test says so.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func newTestLimiter(t *testing.T, budget Budget, clock *fakeClock) *Limiter {
	t.Helper()

	l, err := NewLimiter(budget, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	if clock != nil {
		l.now = clock.Now
		l.sleep = clock.Sleep
	}
	return l
}

func TestNewLimiter_InvalidBudget(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
	}{
		{name: "zero per second", budget: Budget{PerSecond: 0, PerMinute: 10}},
		{name: "zero per minute", budget: Budget{PerSecond: 1, PerMinute: 0}},
		{name: "negative", budget: Budget{PerSecond: -1, PerMinute: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLimiter(tt.budget, zerolog.Nop()); err == nil {
				t.Error("Expected error for invalid budget")
			}
		})
	}
}

func TestLimiter_ThirdAcquireBlocks(t *testing.T) {
	l := newTestLimiter(t, Budget{PerSecond: 2, PerMinute: 10}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() #%d error = %v", i+1, err)
		}
	}

	thirdStart := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() #3 error = %v", err)
	}
	thirdWait := time.Since(thirdStart)
	total := time.Since(start)

	// Two admissions already sit inside the last second, so the third must
	// wait for the first one to leave the window.
	if total < time.Second {
		t.Errorf("Three acquisitions took %v, want >= 1s", total)
	}
	if thirdWait < 450*time.Millisecond {
		t.Errorf("Third Acquire() waited %v, want ~>= 0.5s", thirdWait)
	}
}

func TestLimiter_SlidingWindowProperty(t *testing.T) {
	budget := Budget{PerSecond: 3, PerMinute: 20}
	clock := newFakeClock()
	l := newTestLimiter(t, budget, clock)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	admitted := make([]time.Time, 0, 300)

	for i := 0; i < 300; i++ {
		// Mix bursts (no gap) with idle periods.
		if rng.Intn(3) > 0 {
			clock.Advance(time.Duration(rng.Intn(5000)) * time.Millisecond)
		}
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		admitted = append(admitted, clock.Now())
	}

	for i, at := range admitted {
		inSecond, inMinute := 0, 0
		for j := 0; j <= i; j++ {
			if admitted[j].After(at.Add(-time.Second)) {
				inSecond++
			}
			if admitted[j].After(at.Add(-time.Minute)) {
				inMinute++
			}
		}
		if inSecond > budget.PerSecond {
			t.Fatalf("Window ending at admission %d holds %d requests, budget %d/s", i, inSecond, budget.PerSecond)
		}
		if inMinute > budget.PerMinute {
			t.Fatalf("Window ending at admission %d holds %d requests, budget %d/min", i, inMinute, budget.PerMinute)
		}
		if i > 0 && at.Sub(admitted[i-1]) < budget.Spacing() {
			t.Fatalf("Admissions %d and %d are %v apart, want >= %v", i-1, i, at.Sub(admitted[i-1]), budget.Spacing())
		}
	}
}

func TestLimiter_MinuteWindowIsTighter(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Budget{PerSecond: 10, PerMinute: 5}, clock)
	ctx := context.Background()

	first := clock.Now()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if got := clock.Now().Sub(first); got < time.Minute {
		t.Errorf("Sixth admission after %v, want >= 1m", got)
	}
}

func TestLimiter_ConcurrentCallers(t *testing.T) {
	l := newTestLimiter(t, Budget{PerSecond: 3, PerMinute: 100}, nil)
	ctx := context.Background()

	const callers = 7
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}

	// Six gaps of at least one third of a second each.
	if elapsed := time.Since(start); elapsed < 1990*time.Millisecond {
		t.Errorf("%d concurrent acquisitions took %v, want >= ~2s", callers, elapsed)
	}
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	l := newTestLimiter(t, Budget{PerSecond: 1, PerMinute: 1}, nil)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancelled Acquire() returned after %v", elapsed)
	}
}

func TestKeepRecent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)}

	tests := []struct {
		name        string
		windowStart time.Time
		want        int
	}{
		{name: "nothing expired", windowStart: base.Add(-time.Second), want: 3},
		{name: "boundary entry expires", windowStart: base, want: 2},
		{name: "all expired", windowStart: base.Add(3 * time.Second), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := append([]time.Time(nil), times...)
			if got := keepRecent(input, tt.windowStart); len(got) != tt.want {
				t.Errorf("keepRecent() kept %d, want %d", len(got), tt.want)
			}
		})
	}
}
