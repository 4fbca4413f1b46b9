package extract

import (
	"context"
	"net/url"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
)

// FlowsPath is the flow listing endpoint.
const FlowsPath = "/flows/"

// Flows lists the account's non-archived flows and attaches their
// values-report statistics for the range.
func (e *Extractor) Flows(ctx context.Context, r DateRange) Result[Flows] {
	return capture(ctx, e.logger, CategoryFlows.String(), func(ctx context.Context) (Flows, error) {
		query := url.Values{}
		query.Set("filter", api.Equals("archived", false).String())

		listed, err := pagination.CollectResources[api.FlowAttributes](ctx, e.api, FlowsPath, query)
		if err != nil {
			return Flows{}, err
		}
		if len(listed) == 0 {
			return Flows{Items: []Flow{}}, nil
		}

		conversion, err := e.metric(ctx, e.opts.ConversionMetric)
		if err != nil {
			return Flows{}, err
		}

		ids := make([]string, len(listed))
		for i, f := range listed {
			ids[i] = f.ID
		}

		rows, err := e.valuesReport(ctx, api.ReportQuery{
			Kind:               api.FlowValues,
			Statistics:         engagementStatistics,
			Start:              r.Start,
			End:                r.End,
			ConversionMetricID: conversion.ID,
		}, ids)
		if err != nil {
			return Flows{}, err
		}
		stats := e.entityStats(rows, api.FlowValues.IDField())

		out := Flows{Items: make([]Flow, 0, len(listed))}
		for _, f := range listed {
			item := Flow{
				ID:          f.ID,
				Name:        f.Attributes.Name,
				Status:      f.Attributes.Status,
				TriggerType: f.Attributes.TriggerType,
				Stats:       stats[f.ID],
			}
			out.Totals.Add(item.Stats)
			out.Items = append(out.Items, item)
		}
		out.Totals.Finish()
		return out, nil
	})
}
