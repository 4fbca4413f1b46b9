package extract

import (
	"context"
	"math"
	"net/url"

	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
	"github.com/Sternrassler/klaviyo-extractor/pkg/resolver"
)

// ListsPath is the list listing endpoint.
const ListsPath = "/lists/"

// Lists reports subscriptions, unsubscriptions and net growth over the
// range, plus the current size of every list.
func (e *Extractor) Lists(ctx context.Context, r DateRange) Result[Lists] {
	return capture(ctx, e.logger, CategoryLists.String(), func(ctx context.Context) (Lists, error) {
		subscribed, err := e.metric(ctx, resolver.MetricSubscribedToList)
		if err != nil {
			return Lists{}, err
		}
		unsubscribed, err := e.metric(ctx, resolver.MetricUnsubscribedList)
		if err != nil {
			return Lists{}, err
		}

		query := url.Values{}
		query.Set("additional-fields[list]", "profile_count")

		listed, err := pagination.CollectResources[api.ListAttributes](ctx, e.api, ListsPath, query)
		if err != nil {
			return Lists{}, err
		}

		out := Lists{Items: make([]List, 0, len(listed))}
		for _, l := range listed {
			count := -1
			if l.Attributes.ProfileCount != nil {
				count = int(l.Attributes.ProfileCount.Float())
			}
			out.Items = append(out.Items, List{ID: l.ID, Name: l.Attributes.Name, ProfileCount: count})
		}

		if out.Subscribed, err = e.count(ctx, subscribed.ID, r); err != nil {
			return Lists{}, err
		}
		if out.Unsubscribed, err = e.count(ctx, unsubscribed.ID, r); err != nil {
			return Lists{}, err
		}
		out.NetGrowth = out.Subscribed - out.Unsubscribed
		return out, nil
	})
}

// count returns the number of metric events in the range.
func (e *Extractor) count(ctx context.Context, metricID string, r DateRange) (int, error) {
	doc, err := e.aggregate(ctx, api.AggregateQuery{
		MetricID:     metricID,
		Measurements: []string{api.MeasurementCount},
		Interval:     api.IntervalMonth,
		Start:        r.Start,
		End:          r.End,
	})
	if err != nil {
		return 0, err
	}

	total, malformed := doc.Total(api.MeasurementCount)
	e.warnMalformed(malformed, api.MetricAggregatesPath)
	return int(math.Round(total)), nil
}
