package extract

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
	"github.com/Sternrassler/klaviyo-extractor/pkg/resolver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API is the part of *client.Client the extractors use.
type API interface {
	Get(ctx context.Context, endpoint string, query url.Values) (*client.Response, error)
	Query(ctx context.Context, endpoint string, body any) (*client.Response, error)
}

// MetricResolver resolves metric names to descriptors.
type MetricResolver interface {
	Resolve(ctx context.Context, name string) (resolver.Descriptor, bool, error)
	ResolveAll(ctx context.Context, names ...string) (map[string]resolver.Descriptor, error)
}

// Options tune the extractors.
type Options struct {
	// Batch controls multi-ID report queries.
	Batch pagination.Config

	// TopFlows is the number of flows that get a deep-dive.
	TopFlows int

	// ConversionMetric is the metric used for revenue and conversions.
	ConversionMetric string

	// Timezone for aggregate bucketing.
	Timezone string
}

// DefaultOptions returns the standard extractor options.
func DefaultOptions() Options {
	return Options{
		Batch:            pagination.DefaultConfig(),
		TopFlows:         3,
		ConversionMetric: resolver.MetricPlacedOrder,
		Timezone:         "UTC",
	}
}

// Extractor implements every category extractor against the Klaviyo API.
type Extractor struct {
	api      API
	resolver MetricResolver
	batcher  *pagination.Batcher
	opts     Options
	logger   zerolog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(a API, r MetricResolver, opts Options) *Extractor {
	defaults := DefaultOptions()
	if opts.TopFlows <= 0 {
		opts.TopFlows = defaults.TopFlows
	}
	if opts.ConversionMetric == "" {
		opts.ConversionMetric = defaults.ConversionMetric
	}
	if opts.Timezone == "" {
		opts.Timezone = defaults.Timezone
	}

	return &Extractor{
		api:      a,
		resolver: r,
		batcher:  pagination.NewBatcher(opts.Batch),
		opts:     opts,
		logger:   log.With().Str("component", "extractor").Logger(),
	}
}

// Metrics returns the metric names the extractors depend on.
func (e *Extractor) Metrics() []string {
	return []string{
		e.opts.ConversionMetric,
		resolver.MetricSubscribedToList,
		resolver.MetricUnsubscribedList,
	}
}

// capture runs fn and converts an error or a panic into a degraded result.
func capture[T any](ctx context.Context, logger zerolog.Logger, name string, fn func(ctx context.Context) (T, error)) (res Result[T]) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Str("category", name).
				Interface("panic", p).
				Msg("Extractor panicked")
			res = Degrade[T](DegradeReason{Kind: ReasonPanic, Message: fmt.Sprint(p)})
		}
	}()

	payload, err := fn(ctx)
	if err != nil {
		reason := reasonFor(err)
		logDegraded(logger, name, reason)
		return Degrade[T](reason)
	}

	logger.Debug().
		Str("category", name).
		Dur("duration", time.Since(start)).
		Msg("Category extracted")
	return Ok(payload)
}

func logDegraded(logger zerolog.Logger, name string, reason DegradeReason) {
	var evt *zerolog.Event
	switch reason.Kind {
	case string(client.KindNotFound), ReasonMetricUnavailable:
		// Missing features are expected.
		evt = logger.Debug()
	case ReasonPanic, ReasonInternal:
		evt = logger.Error()
	default:
		evt = logger.Warn()
	}

	evt.Str("category", name).
		Str("reason", reason.Kind).
		Str("detail", reason.Message).
		Msg("Category degraded")
}

// metric resolves name or fails with *MetricUnavailableError.
func (e *Extractor) metric(ctx context.Context, name string) (resolver.Descriptor, error) {
	d, ok, err := e.resolver.Resolve(ctx, name)
	if err != nil {
		return resolver.Descriptor{}, err
	}
	if !ok {
		return resolver.Descriptor{}, &MetricUnavailableError{Metric: name}
	}
	return d, nil
}

// aggregate posts a metric aggregate query.
func (e *Extractor) aggregate(ctx context.Context, q api.AggregateQuery) (*api.AggregateDocument, error) {
	if q.Timezone == "" {
		q.Timezone = e.opts.Timezone
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	resp, err := e.api.Query(ctx, api.MetricAggregatesPath, q.Body())
	if err != nil {
		return nil, err
	}

	var doc api.AggregateDocument
	if err := resp.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// valuesReport runs a values report over ids in sequential batches and
// returns the merged rows in input order.
func (e *Extractor) valuesReport(ctx context.Context, q api.ReportQuery, ids []string) ([]api.ReportResult, error) {
	return pagination.FetchBatches(ctx, e.batcher, ids, func(ctx context.Context, batch []string) ([]api.ReportResult, error) {
		bq := q
		bq.Filter = api.ContainsAny(q.Kind.IDField(), batch)
		if err := bq.Validate(); err != nil {
			return nil, err
		}

		resp, err := e.api.Query(ctx, q.Kind.Path(), bq.Body())
		if err != nil {
			return nil, err
		}

		var doc api.ValuesReportDocument
		if err := resp.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Results(), nil
	})
}

// entityStats sums report rows per entity. Malformed statistics count as
// zero and are logged.
func (e *Extractor) entityStats(rows []api.ReportResult, idField string) map[string]EntityStats {
	stats := make(map[string]EntityStats)
	malformed := 0

	read := func(s api.Statistics, name string) float64 {
		v, err := s.Float(name)
		if err != nil {
			malformed++
		}
		return v
	}

	for _, row := range rows {
		id := row.Groupings[idField]
		if id == "" {
			continue
		}

		acc := stats[id]
		acc.Add(EntityStats{
			Recipients:      read(row.Statistics, api.StatRecipients),
			Delivered:       read(row.Statistics, api.StatDelivered),
			OpensUnique:     read(row.Statistics, api.StatOpensUnique),
			ClicksUnique:    read(row.Statistics, api.StatClicksUnique),
			Conversions:     read(row.Statistics, api.StatConversions),
			ConversionValue: read(row.Statistics, api.StatConversionValue),
			Unsubscribes:    read(row.Statistics, api.StatUnsubscribes),
		})
		stats[id] = acc
	}

	for id, s := range stats {
		s.Finish()
		stats[id] = s
	}

	e.warnMalformed(malformed, idField)
	return stats
}

func (e *Extractor) warnMalformed(count int, source string) {
	if count == 0 {
		return
	}
	e.logger.Warn().
		Int("values", count).
		Str("source", source).
		Msg("Malformed statistics normalised to zero")
}

// engagementStatistics are requested for campaigns and flows. Rates are
// derived from the counts after merging rows.
var engagementStatistics = []string{
	api.StatRecipients,
	api.StatDelivered,
	api.StatOpensUnique,
	api.StatClicksUnique,
	api.StatConversions,
	api.StatConversionValue,
	api.StatUnsubscribes,
}

func points(dates []time.Time, values []float64) []Point {
	out := make([]Point, 0, len(values))
	for i, v := range values {
		var t time.Time
		if i < len(dates) {
			t = dates[i]
		}
		out = append(out, Point{Time: t, Value: v})
	}
	return out
}
