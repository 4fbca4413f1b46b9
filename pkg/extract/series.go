package extract

import (
	"context"
	"errors"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
)

// SeriesQuery selects a metric time series.
type SeriesQuery struct {
	Metric       string
	Measurements []string
	Interval     string

	// Filter is an optional extra predicate, e.g. equals($attributed_flow,'X').
	Filter api.Filter
}

// TimeSeries aggregates a metric over the range, one point per interval.
func (e *Extractor) TimeSeries(ctx context.Context, r DateRange, q SeriesQuery) Result[Series] {
	return capture(ctx, e.logger, "series:"+q.Metric, func(ctx context.Context) (Series, error) {
		return e.series(ctx, r, q)
	})
}

func (e *Extractor) series(ctx context.Context, r DateRange, q SeriesQuery) (Series, error) {
	if len(q.Measurements) == 0 {
		return Series{}, errors.New("at least one measurement is required")
	}
	interval := q.Interval
	if interval == "" {
		interval = api.IntervalDay
	}

	metric, err := e.metric(ctx, q.Metric)
	if err != nil {
		return Series{}, err
	}

	doc, err := e.aggregate(ctx, api.AggregateQuery{
		MetricID:     metric.ID,
		Measurements: q.Measurements,
		Interval:     interval,
		Start:        r.Start,
		End:          r.End,
		Extra:        q.Filter,
	})
	if err != nil {
		return Series{}, err
	}

	series := Series{
		Metric:   metric.Name,
		MetricID: metric.ID,
		Interval: interval,
		Values:   make(map[string][]Point, len(q.Measurements)),
	}
	for _, m := range q.Measurements {
		values, malformed := doc.Series(m)
		e.warnMalformed(malformed, api.MetricAggregatesPath)
		series.Values[m] = points(doc.Dates(), values)
	}
	return series, nil
}
