// Package pagination walks Klaviyo's cursor-paginated listings and splits
// multi-ID report queries into fixed-size batches.
//
// Listings return an opaque cursor in links.next; Collect follows it until the
// last page:
//
//	campaigns, err := pagination.CollectResources[api.CampaignAttributes](ctx, client, "/campaigns/", query)
//
// Values reports accept a bounded number of IDs per request. FetchBatches
// partitions the IDs, issues one request per batch strictly in sequence with a
// pause between batches, and concatenates the results in input order:
//
//	batcher := pagination.NewBatcher(pagination.DefaultConfig()) // 15 per batch, 1s pause
//	rows, err := pagination.FetchBatches(ctx, batcher, ids, func(ctx context.Context, batch []string) ([]Row, error) {
//		return queryReport(ctx, batch)
//	})
//
// The pause smooths bursts on top of the client's rate limiter; it does not
// replace it. On failure FetchBatches returns the rows of the completed
// batches together with the error.
package pagination
