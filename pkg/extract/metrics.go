package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeDone     = "done"
	outcomeAborted  = "aborted"
)

var (
	categoryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klaviyo_extract_category_total",
		Help: "Total number of category extractions by outcome",
	}, []string{"category", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klaviyo_extract_run_duration_seconds",
		Help:    "Duration of extraction runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})
)
