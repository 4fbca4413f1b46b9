package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tier names a Klaviyo rate-limit tier.
type Tier string

const (
	// TierSmall is the default tier for most read endpoints.
	TierSmall Tier = "small"

	// TierMedium covers listing endpoints such as campaigns and flows.
	TierMedium Tier = "medium"

	// TierLarge covers high-volume read endpoints.
	TierLarge Tier = "large"

	// TierXL covers the most permissive endpoints.
	TierXL Tier = "xl"
)

// Budget is the request allowance enforced by a Limiter.
type Budget struct {
	// PerSecond is the maximum number of requests admitted in any 1s window.
	PerSecond int `json:"requests_per_second" yaml:"requests_per_second"`

	// PerMinute is the maximum number of requests admitted in any 60s window.
	PerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
}

var tierBudgets = map[Tier]Budget{
	TierSmall:  {PerSecond: 3, PerMinute: 60},
	TierMedium: {PerSecond: 10, PerMinute: 150},
	TierLarge:  {PerSecond: 75, PerMinute: 700},
	TierXL:     {PerSecond: 350, PerMinute: 3500},
}

// TierBudget returns the budget for a named tier. Names are case-insensitive.
func TierBudget(name string) (Budget, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(name)))
	budget, ok := tierBudgets[tier]
	if !ok {
		return Budget{}, fmt.Errorf("unknown rate limit tier %q", name)
	}
	return budget, nil
}

// Tiers returns all known tiers ordered from smallest to largest budget.
func Tiers() []Tier {
	tiers := make([]Tier, 0, len(tierBudgets))
	for tier := range tierBudgets {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tierBudgets[tiers[i]].PerSecond < tierBudgets[tiers[j]].PerSecond
	})
	return tiers
}

// Validate reports whether the budget can admit any request at all.
func (b Budget) Validate() error {
	if b.PerSecond < 1 {
		return fmt.Errorf("requests_per_second must be >= 1 (got %d)", b.PerSecond)
	}
	if b.PerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be >= 1 (got %d)", b.PerMinute)
	}
	return nil
}

// Spacing returns the minimum interval between two admissions.
func (b Budget) Spacing() time.Duration {
	if b.PerSecond < 1 {
		return 0
	}
	return time.Second / time.Duration(b.PerSecond)
}
