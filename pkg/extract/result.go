package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
)

// Degrade reason kinds that do not come from a failed request.
const (
	ReasonMetricUnavailable = "metric_unavailable"
	ReasonDependency        = "dependency_degraded"
	ReasonPanic             = "panic"
	ReasonCancelled         = "cancelled"
	ReasonInternal          = "internal"
)

// DegradeReason says why a category carries a zero payload. Kind is a
// client.Kind for request failures or one of the Reason constants.
type DegradeReason struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

func (r DegradeReason) String() string {
	return r.Kind + ": " + r.Message
}

// Result is the outcome of one extractor: a payload, or a zero payload plus
// the reason it degraded.
type Result[T any] struct {
	Payload  T              `json:"payload" yaml:"payload"`
	Degraded *DegradeReason `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// Ok wraps a complete payload.
func Ok[T any](payload T) Result[T] {
	return Result[T]{Payload: payload}
}

// Degrade returns a result with a zero payload.
func Degrade[T any](reason DegradeReason) Result[T] {
	return Result[T]{Degraded: &reason}
}

// OK reports whether the result is complete.
func (r Result[T]) OK() bool {
	return r.Degraded == nil
}

// MetricUnavailableError is returned when a metric the category depends on
// does not exist in the account.
type MetricUnavailableError struct {
	Metric string
}

func (e *MetricUnavailableError) Error() string {
	return fmt.Sprintf("metric unavailable: %q", e.Metric)
}

// reasonFor classifies err into a DegradeReason.
func reasonFor(err error) DegradeReason {
	var unavailable *MetricUnavailableError
	if errors.As(err, &unavailable) {
		return DegradeReason{Kind: ReasonMetricUnavailable, Message: err.Error()}
	}

	// A per-request timeout is a transient network failure, not a cancelled run.
	if kind := client.KindOf(err); kind != "" {
		return DegradeReason{Kind: string(kind), Message: err.Error()}
	}

	if errors.Is(err, client.ErrContextCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return DegradeReason{Kind: ReasonCancelled, Message: err.Error()}
	}
	return DegradeReason{Kind: ReasonInternal, Message: err.Error()}
}
