// Package extract turns a date range into one combined analytics dataset.
//
// Each category (revenue, campaigns, flows, lists, forms, flow deep-dives) has
// an extractor that returns a Result: either its payload or a DegradeReason
// with a zero payload. Extractors never return errors, so one flaky endpoint
// costs one category, not the run.
//
// The Orchestrator resolves the metrics every extractor needs, fans the
// independent extractors out on a bounded worker group, runs flow deep-dives
// once the flow listing is known, and merges everything into a Dataset:
//
//	orch := extract.NewOrchestrator(extract.NewExtractor(client, res, extract.DefaultOptions()), res, extract.DefaultConfig())
//	events, unsubscribe := orch.Subscribe(32)
//	defer unsubscribe()
//	dataset, err := orch.ExtractAll(ctx, dateRange)
//
// The only error ExtractAll returns after validation is an authentication
// failure on the first request; the run is then aborted before any extractor
// starts.
package extract
