package client

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Klaviyo client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klaviyo_requests_total",
		Help: "Total Klaviyo requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klaviyo_request_duration_seconds",
		Help:    "Klaviyo request attempt duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klaviyo_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klaviyo_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klaviyo_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// EventType identifies a point in a request's lifecycle.
type EventType string

const (
	EventAttempt  EventType = "attempt"
	EventRetry    EventType = "retry"
	EventSuccess  EventType = "success"
	EventFailure  EventType = "failure"
	EventCacheHit EventType = "cache_hit"
)

// Event describes one step of a request.
type Event struct {
	Type     EventType
	Method   string
	Endpoint string

	// Attempt is zero-based.
	Attempt    int
	StatusCode int
	Kind       Kind

	// Wait is the backoff chosen before the next attempt (EventRetry only).
	Wait time.Duration

	// Duration is how long the attempt took.
	Duration time.Duration

	Err error
}

// Observer receives request events. Observers are advisory: they run on the
// request path and must return quickly. A panicking observer is ignored.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// ChannelObserver forwards events to a buffered channel, dropping events when
// the buffer is full.
type ChannelObserver struct {
	events chan Event
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{events: make(chan Event, buffer)}
}

// Observe sends e without blocking.
func (o *ChannelObserver) Observe(e Event) {
	select {
	case o.events <- e:
	default:
	}
}

// Events returns the receive side of the channel.
func (o *ChannelObserver) Events() <-chan Event {
	return o.events
}

// telemetry is the built-in observer: structured logs plus Prometheus.
type telemetry struct {
	logger zerolog.Logger
}

func (t telemetry) Observe(e Event) {
	switch e.Type {
	case EventAttempt:
		t.logger.Debug().
			Str("method", e.Method).
			Str("endpoint", e.Endpoint).
			Int("attempt", e.Attempt).
			Msg("Executing Klaviyo request")

	case EventSuccess:
		requestsTotal.WithLabelValues(e.Endpoint, strconv.Itoa(e.StatusCode)).Inc()
		requestDuration.WithLabelValues(e.Endpoint).Observe(e.Duration.Seconds())
		evt := t.logger.Debug()
		if e.Attempt > 0 {
			evt = t.logger.Info()
		}
		evt.Str("endpoint", e.Endpoint).
			Int("status", e.StatusCode).
			Int("attempt", e.Attempt).
			Dur("duration", e.Duration).
			Msg("Klaviyo request succeeded")

	case EventCacheHit:
		requestsTotal.WithLabelValues(e.Endpoint, "cached").Inc()
		t.logger.Debug().Str("endpoint", e.Endpoint).Msg("Served from cache")

	case EventRetry:
		requestsTotal.WithLabelValues(e.Endpoint, statusLabel(e)).Inc()
		retriesTotal.WithLabelValues(string(e.Kind)).Inc()
		retryBackoffSeconds.WithLabelValues(string(e.Kind)).Observe(e.Wait.Seconds())
		t.logger.Warn().
			Str("endpoint", e.Endpoint).
			Int("status", e.StatusCode).
			Str("kind", string(e.Kind)).
			Int("attempt", e.Attempt).
			Dur("backoff", e.Wait).
			Err(e.Err).
			Msg("Retrying Klaviyo request after backoff")

	case EventFailure:
		requestsTotal.WithLabelValues(e.Endpoint, statusLabel(e)).Inc()

		var evt *zerolog.Event
		switch {
		case e.Kind == KindNotFound:
			evt = t.logger.Debug()
		case e.Kind == KindMalformedResponse:
			evt = t.logger.Warn()
		default:
			evt = t.logger.Error()
		}
		if isExhausted(e.Err) {
			retryExhaustedTotal.WithLabelValues(string(e.Kind)).Inc()
		}
		evt.Str("endpoint", e.Endpoint).
			Int("status", e.StatusCode).
			Str("kind", string(e.Kind)).
			Int("attempts", e.Attempt+1).
			Err(e.Err).
			Msg("Klaviyo request failed")
	}
}

func statusLabel(e Event) string {
	if e.StatusCode == 0 {
		return "network_error"
	}
	return strconv.Itoa(e.StatusCode)
}

func isExhausted(err error) bool {
	reqErr, ok := err.(*RequestError)
	return ok && reqErr.Exhausted
}
