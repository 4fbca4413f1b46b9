package extract

import (
	"context"
	"math"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
)

// Revenue extracts order revenue, order count and the daily revenue series
// from the conversion metric.
func (e *Extractor) Revenue(ctx context.Context, r DateRange) Result[Revenue] {
	return capture(ctx, e.logger, CategoryRevenue.String(), func(ctx context.Context) (Revenue, error) {
		series, err := e.series(ctx, r, SeriesQuery{
			Metric:       e.opts.ConversionMetric,
			Measurements: []string{api.MeasurementSumValue, api.MeasurementCount},
			Interval:     api.IntervalDay,
		})
		if err != nil {
			return Revenue{}, err
		}

		revenue := Revenue{
			MetricID: series.MetricID,
			Total:    series.Total(api.MeasurementSumValue),
			Orders:   int(math.Round(series.Total(api.MeasurementCount))),
			Daily:    series.Values[api.MeasurementSumValue],
		}
		if revenue.Orders > 0 {
			revenue.AverageOrderValue = revenue.Total / float64(revenue.Orders)
		}
		return revenue, nil
	})
}
