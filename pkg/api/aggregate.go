package api

import (
	"encoding/json"
	"errors"
	"time"
)

// MetricAggregatesPath is the aggregate query endpoint.
const MetricAggregatesPath = "/metric-aggregates/"

const metricAggregateType = "metric-aggregate"

// Metric aggregate measurements.
const (
	MeasurementCount    = "count"
	MeasurementSumValue = "sum_value"
	MeasurementUnique   = "unique"
	MeasurementValueAvg = "value_avg"
)

// Aggregate intervals.
const (
	IntervalHour  = "hour"
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

// AggregateQuery describes a POST /metric-aggregates/ request.
type AggregateQuery struct {
	MetricID     string
	Measurements []string
	Interval     string
	Start        time.Time
	End          time.Time

	// Extra is at most one predicate besides the datetime bounds.
	Extra Filter

	By       []string
	Timezone string
}

type aggregateAttributes struct {
	MetricID     string   `json:"metric_id"`
	Measurements []string `json:"measurements"`
	Interval     string   `json:"interval"`
	Filter       []string `json:"filter"`
	By           []string `json:"by,omitempty"`
	Timezone     string   `json:"timezone"`
}

// RequestBody is the top-level JSON:API request envelope.
type RequestBody[A any] struct {
	Data struct {
		Type       string `json:"type"`
		Attributes A      `json:"attributes"`
	} `json:"data"`
}

func newRequestBody[A any](resourceType string, attrs A) RequestBody[A] {
	var body RequestBody[A]
	body.Data.Type = resourceType
	body.Data.Attributes = attrs
	return body
}

// Validate checks the query before it is sent.
func (q AggregateQuery) Validate() error {
	if q.MetricID == "" {
		return errors.New("metric id is required")
	}
	if len(q.Measurements) == 0 {
		return errors.New("at least one measurement is required")
	}
	if q.End.Before(q.Start) {
		return errors.New("end is before start")
	}
	return nil
}

// Body renders the request body. The datetime bounds are always present:
// [Start, End).
func (q AggregateQuery) Body() RequestBody[any] {
	interval := q.Interval
	if interval == "" {
		interval = IntervalDay
	}
	timezone := q.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	filters := []string{
		GreaterOrEqual("datetime", q.Start).String(),
		LessThan("datetime", q.End).String(),
	}
	if q.Extra != "" {
		filters = append(filters, q.Extra.String())
	}

	return newRequestBody[any](metricAggregateType, aggregateAttributes{
		MetricID:     q.MetricID,
		Measurements: q.Measurements,
		Interval:     interval,
		Filter:       filters,
		By:           q.By,
		Timezone:     timezone,
	})
}

// AggregateGroup is one dimension combination of an aggregate response.
// Measurements maps a measurement to one value per date.
type AggregateGroup struct {
	Dimensions   []string                     `json:"dimensions"`
	Measurements map[string][]json.RawMessage `json:"measurements"`
}

// AggregateDocument is the response of POST /metric-aggregates/.
type AggregateDocument struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			Dates []time.Time      `json:"dates"`
			Data  []AggregateGroup `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// Dates returns the bucket start times.
func (d *AggregateDocument) Dates() []time.Time {
	return d.Data.Attributes.Dates
}

// Series sums measurement across all groups, one value per date. Malformed
// values count as zero and are reported through the malformed count.
func (d *AggregateDocument) Series(measurement string) (values []float64, malformed int) {
	values = make([]float64, len(d.Data.Attributes.Dates))
	for _, group := range d.Data.Attributes.Data {
		for i, raw := range group.Measurements[measurement] {
			if i >= len(values) {
				// More values than dates: keep them rather than drop data.
				values = append(values, 0)
			}
			n, err := Number(raw)
			if err != nil {
				malformed++
				continue
			}
			values[i] += n
		}
	}
	return values, malformed
}

// Total sums measurement over every date and group.
func (d *AggregateDocument) Total(measurement string) (total float64, malformed int) {
	values, malformed := d.Series(measurement)
	for _, v := range values {
		total += v
	}
	return total, malformed
}
