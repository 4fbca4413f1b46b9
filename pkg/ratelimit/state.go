package ratelimit

import (
	"time"
)

// Redis key suffixes for quota state. Keys are namespaced per credential
// fingerprint: klaviyo:quota:<fingerprint>:<suffix>.
const (
	redisKeyPrefix          = "klaviyo:quota:"
	redisSuffixLimit        = "limit"
	redisSuffixRemaining    = "remaining"
	redisSuffixResetAt      = "reset_at"
	redisSuffixLastUpdate   = "last_update"
	defaultQuotaStateExpiry = 10 * time.Minute
)

// QuotaLowRatio marks the state unhealthy once remaining quota drops below
// this share of the limit.
const QuotaLowRatio = 0.1

// QuotaState is the most recent quota the server reported for a credential.
type QuotaState struct {
	// Limit is the request allowance of the current server window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current server window.
	Remaining int `json:"remaining"`

	// ResetAt is when the server window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is false once Remaining falls below QuotaLowRatio of Limit.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExhausted returns true when the server reported no remaining quota.
func (s *QuotaState) IsExhausted() bool {
	return s.Limit > 0 && s.Remaining <= 0
}

// TimeUntilReset returns the duration until the server window resets, or 0.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from Limit and Remaining.
func (s *QuotaState) UpdateHealth() {
	if s.Limit <= 0 {
		s.IsHealthy = true
		return
	}
	s.IsHealthy = float64(s.Remaining) >= float64(s.Limit)*QuotaLowRatio
}
