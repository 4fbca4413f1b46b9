package client

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds the retry loop for 429 and retryable failures.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseDelay is the unit of exponential backoff: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including server-provided hints.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the default policy: 3 retries (4 attempts),
// 1s base, waits capped at 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Delay returns the wait before the retry following the given zero-based
// attempt. A positive server hint replaces the exponential schedule; either
// way the result is capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	delay := hint
	if delay <= 0 {
		// Shifting past ~2^62ns overflows; the cap applies long before that.
		exp := math.Min(float64(attempt), 30)
		delay = time.Duration(float64(p.BaseDelay) * math.Pow(2, exp))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
