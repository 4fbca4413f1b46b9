package extract

import (
	"context"
	"sort"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
)

// seriesInterval is the flow series report interval.
const seriesInterval = "daily"

// FlowDetails fetches daily series for the top flows of flows, ranked by
// conversion value. Flows are queried in batches; each batch returns rows for
// all of its flows, which are then split per flow.
func (e *Extractor) FlowDetails(ctx context.Context, r DateRange, flows Flows) Result[FlowDetails] {
	return capture(ctx, e.logger, CategoryFlowDetails.String(), func(ctx context.Context) (FlowDetails, error) {
		top := topFlows(flows.Items, e.opts.TopFlows)
		if len(top) == 0 {
			return FlowDetails{Items: []FlowDetail{}}, nil
		}

		conversion, err := e.metric(ctx, e.opts.ConversionMetric)
		if err != nil {
			return FlowDetails{}, err
		}

		ids := make([]string, len(top))
		for i, f := range top {
			ids[i] = f.ID
		}

		details, err := pagination.FetchBatches(ctx, e.batcher, ids, func(ctx context.Context, batch []string) ([]FlowDetail, error) {
			q := api.ReportQuery{
				Kind:               api.FlowSeries,
				Statistics:         []string{api.StatConversionValue, api.StatRecipients},
				Start:              r.Start,
				End:                r.End,
				ConversionMetricID: conversion.ID,
				Filter:             api.ContainsAny(api.FlowSeries.IDField(), batch),
				Interval:           seriesInterval,
			}
			if err := q.Validate(); err != nil {
				return nil, err
			}

			resp, err := e.api.Query(ctx, q.Kind.Path(), q.Body())
			if err != nil {
				return nil, err
			}

			var doc api.SeriesReportDocument
			if err := resp.Decode(&doc); err != nil {
				return nil, err
			}

			out := make([]FlowDetail, 0, len(batch))
			for _, id := range batch {
				value, badValue := doc.SeriesFor(api.StatConversionValue, api.FlowSeries.IDField(), id)
				recipients, badRecipients := doc.SeriesFor(api.StatRecipients, api.FlowSeries.IDField(), id)
				e.warnMalformed(badValue+badRecipients, api.FlowSeries.Path())

				out = append(out, FlowDetail{
					FlowID:          id,
					ConversionValue: points(doc.DateTimes(), value),
					Recipients:      points(doc.DateTimes(), recipients),
				})
			}
			return out, nil
		})
		if err != nil {
			return FlowDetails{}, err
		}

		for i := range details {
			details[i].Name = top[i].Name
		}
		return FlowDetails{Items: details}, nil
	})
}

// topFlows returns up to n flows with the highest conversion value. Ties keep
// listing order.
func topFlows(flows []Flow, n int) []Flow {
	ranked := make([]Flow, len(flows))
	copy(ranked, flows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Stats.ConversionValue > ranked[j].Stats.ConversionValue
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
