// Package metrics documents the Prometheus metrics exported by the extractor
// and serves them. The metrics themselves are defined next to the code that
// records them (client, cache, ratelimit, extract) and register through
// promauto, so importing those packages is enough to export them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's metrics use.
var Registry = prometheus.DefaultRegisterer

// Descriptor documents one exported metric.
type Descriptor struct {
	Name    string
	Type    string
	Labels  []string
	Package string
	Help    string
}

// Catalog lists every metric the module exports.
var Catalog = []Descriptor{
	// pkg/ratelimit
	{Name: "klaviyo_ratelimit_admitted_total", Type: "counter", Package: "ratelimit", Help: "Requests admitted by the local rate limiter"},
	{Name: "klaviyo_ratelimit_wait_seconds", Type: "histogram", Package: "ratelimit", Help: "Time spent waiting for admission"},
	{Name: "klaviyo_quota_remaining", Type: "gauge", Labels: []string{"account"}, Package: "ratelimit", Help: "Server-reported requests remaining"},
	{Name: "klaviyo_quota_low_total", Type: "counter", Package: "ratelimit", Help: "Responses reporting quota below the healthy threshold"},

	// pkg/cache
	{Name: "klaviyo_cache_hits_total", Type: "counter", Package: "cache", Help: "Response cache hits"},
	{Name: "klaviyo_cache_misses_total", Type: "counter", Package: "cache", Help: "Response cache misses"},
	{Name: "klaviyo_cache_size_bytes", Type: "counter", Package: "cache", Help: "Bytes written to the response cache"},
	{Name: "klaviyo_cache_errors_total", Type: "counter", Labels: []string{"operation"}, Package: "cache", Help: "Cache operation errors"},

	// pkg/client
	{Name: "klaviyo_requests_total", Type: "counter", Labels: []string{"endpoint", "status"}, Package: "client", Help: "Requests by endpoint and HTTP status"},
	{Name: "klaviyo_request_duration_seconds", Type: "histogram", Labels: []string{"endpoint"}, Package: "client", Help: "Request duration by endpoint"},
	{Name: "klaviyo_retries_total", Type: "counter", Labels: []string{"kind"}, Package: "client", Help: "Retry attempts by failure kind"},
	{Name: "klaviyo_retry_backoff_seconds", Type: "histogram", Labels: []string{"kind"}, Package: "client", Help: "Backoff slept before a retry"},
	{Name: "klaviyo_retry_exhausted_total", Type: "counter", Labels: []string{"kind"}, Package: "client", Help: "Requests that used up their retries"},

	// pkg/extract
	{Name: "klaviyo_extract_category_total", Type: "counter", Labels: []string{"category", "outcome"}, Package: "extract", Help: "Category extractions by outcome (ok, degraded)"},
	{Name: "klaviyo_extract_run_duration_seconds", Type: "histogram", Labels: []string{"outcome"}, Package: "extract", Help: "Extraction run duration by outcome (done, aborted)"},
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Example Prometheus Queries:
//
//	# Share of requests that needed a retry
//	sum(rate(klaviyo_retries_total[5m])) / sum(rate(klaviyo_requests_total[5m]))
//
//	# Rate-limit exhaustion (categories degraded by 429)
//	rate(klaviyo_retry_exhausted_total{kind="rate_limit_exceeded"}[15m])
//
//	# Server quota running low
//	klaviyo_quota_remaining < 15
//
//	# Degraded categories per run
//	sum by (category) (increase(klaviyo_extract_category_total{outcome="degraded"}[1d]))
//
//	# P95 limiter wait
//	histogram_quantile(0.95, rate(klaviyo_ratelimit_wait_seconds_bucket[5m]))
