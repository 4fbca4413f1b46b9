// Package ratelimit keeps outbound Klaviyo traffic inside the account's quota.
//
// Limiter is the authoritative client-side throttle: a dual sliding window
// (requests per second and per minute) shared by every request a client issues.
// QuotaTracker records the quota the server reports back in RateLimit-* headers
// so operators can watch remaining headroom across processes.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	limiterAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klaviyo_ratelimit_admitted_total",
		Help: "Total number of requests admitted by the local rate limiter",
	})

	limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "klaviyo_ratelimit_wait_seconds",
		Help:    "Time spent waiting for rate limiter admission",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
	})
)

// Limiter admits requests so that no 1s window holds more than
// Budget.PerSecond admissions and no 60s window more than Budget.PerMinute.
// It is safe for concurrent use.
type Limiter struct {
	budget Budget
	logger zerolog.Logger

	// turn serialises Acquire callers; holding it is the critical section.
	turn chan struct{}

	second []time.Time
	minute []time.Time
	last   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for the given budget.
func NewLimiter(budget Budget, logger zerolog.Logger) (*Limiter, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	return &Limiter{
		budget: budget,
		logger: logger,
		turn:   make(chan struct{}, 1),
		second: make([]time.Time, 0, budget.PerSecond),
		minute: make([]time.Time, 0, budget.PerMinute),
		now:    time.Now,
		sleep:  sleepContext,
	}, nil
}

// Budget returns the configured budget.
func (l *Limiter) Budget() Budget {
	return l.budget
}

// Acquire blocks until a request can be issued without exceeding either
// window, then records it. Waiting callers are admitted one at a time in the
// order they entered. The only error is the context's.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := l.now()

	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	for {
		now := l.now()
		l.evict(now)

		wait := l.waitFor(now)
		if wait <= 0 {
			break
		}

		l.logger.Debug().
			Dur("wait", wait).
			Int("second_window", len(l.second)).
			Int("minute_window", len(l.minute)).
			Msg("Rate limiter holding request")

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	admitted := l.now()
	l.second = append(l.second, admitted)
	l.minute = append(l.minute, admitted)
	l.last = admitted

	limiterAdmittedTotal.Inc()
	limiterWaitSeconds.Observe(admitted.Sub(start).Seconds())

	return nil
}

// evict drops timestamps that fell out of their windows. A timestamp exactly
// one window old no longer counts.
func (l *Limiter) evict(now time.Time) {
	l.second = keepRecent(l.second, now.Add(-time.Second))
	l.minute = keepRecent(l.minute, now.Add(-time.Minute))
}

// waitFor returns how long the caller must wait before the next admission,
// taking the tighter of both windows and the minimum spacing.
func (l *Limiter) waitFor(now time.Time) time.Duration {
	var wait time.Duration

	if len(l.second) >= l.budget.PerSecond {
		wait = maxDuration(wait, l.second[len(l.second)-l.budget.PerSecond].Add(time.Second).Sub(now))
	}
	if len(l.minute) >= l.budget.PerMinute {
		wait = maxDuration(wait, l.minute[len(l.minute)-l.budget.PerMinute].Add(time.Minute).Sub(now))
	}
	if !l.last.IsZero() {
		wait = maxDuration(wait, l.last.Add(l.budget.Spacing()).Sub(now))
	}

	return wait
}

// keepRecent drops entries at or before windowStart, reusing the backing array.
func keepRecent(times []time.Time, windowStart time.Time) []time.Time {
	first := 0
	for first < len(times) && !times[first].After(windowStart) {
		first++
	}

	if first == 0 {
		return times
	}
	if first >= len(times) {
		return times[:0]
	}

	copy(times, times[first:])
	return times[:len(times)-first]
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
