package extract

import (
	"context"
	"net/url"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
)

// CampaignsPath is the campaign listing endpoint.
const CampaignsPath = "/campaigns/"

// Campaigns lists the email campaigns scheduled in the range and attaches
// their values-report statistics.
func (e *Extractor) Campaigns(ctx context.Context, r DateRange) Result[Campaigns] {
	return capture(ctx, e.logger, CategoryCampaigns.String(), func(ctx context.Context) (Campaigns, error) {
		query := url.Values{}
		query.Set("filter", api.And(
			api.Equals("messages.channel", "email"),
			api.GreaterOrEqual("scheduled_at", r.Start),
			api.LessThan("scheduled_at", r.End),
		).String())

		listed, err := pagination.CollectResources[api.CampaignAttributes](ctx, e.api, CampaignsPath, query)
		if err != nil {
			return Campaigns{}, err
		}
		if len(listed) == 0 {
			return Campaigns{Items: []Campaign{}}, nil
		}

		conversion, err := e.metric(ctx, e.opts.ConversionMetric)
		if err != nil {
			return Campaigns{}, err
		}

		ids := make([]string, len(listed))
		for i, c := range listed {
			ids[i] = c.ID
		}

		rows, err := e.valuesReport(ctx, api.ReportQuery{
			Kind:               api.CampaignValues,
			Statistics:         engagementStatistics,
			Start:              r.Start,
			End:                r.End,
			ConversionMetricID: conversion.ID,
		}, ids)
		if err != nil {
			return Campaigns{}, err
		}
		stats := e.entityStats(rows, api.CampaignValues.IDField())

		out := Campaigns{Items: make([]Campaign, 0, len(listed))}
		for _, c := range listed {
			item := Campaign{
				ID:       c.ID,
				Name:     c.Attributes.Name,
				SendTime: c.Attributes.SendTime,
				Stats:    stats[c.ID],
			}
			if item.SendTime == nil {
				item.SendTime = c.Attributes.ScheduledAt
			}
			out.Totals.Add(item.Stats)
			out.Items = append(out.Items, item)
		}
		out.Totals.Finish()
		return out, nil
	})
}
