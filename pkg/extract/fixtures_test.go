package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/internal/testutil"
	"github.com/Sternrassler/klaviyo-extractor/pkg/api"
	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	"github.com/Sternrassler/klaviyo-extractor/pkg/resolver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testRange = DateRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
}

var testDates = []string{"2024-01-01T00:00:00+00:00", "2024-01-02T00:00:00+00:00"}

// metricIDs are the IDs the fake account reports for each metric name.
var metricIDs = map[string]string{
	resolver.MetricPlacedOrder:      "PO",
	resolver.MetricSubscribedToList: "SUB",
	resolver.MetricUnsubscribedList: "UNSUB",
	resolver.MetricOpenedEmail:      "OPEN",
}

func newTestClient(t *testing.T, mock *testutil.MockKlaviyo) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(client.Credential{Token: "pk_test_123", Revision: client.DefaultRevision})
	cfg.BaseURL = mock.URL()
	cfg.Budget = ratelimit.Budget{PerSecond: 1000, PerMinute: 100000}
	cfg.Retry = client.RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestExtractor(t *testing.T, mock *testutil.MockKlaviyo) (*Extractor, *resolver.Resolver) {
	t.Helper()

	c := newTestClient(t, mock)
	res := resolver.New(c, zerolog.Nop())

	opts := DefaultOptions()
	opts.Batch.Pause = -1
	return NewExtractor(c, res, opts), res
}

func serveMetrics(mock *testutil.MockKlaviyo, names ...string) {
	resources := make([]testutil.Resource, 0, len(names))
	for _, name := range names {
		resources = append(resources, testutil.Resource{
			Type:       "metric",
			ID:         metricIDs[name],
			Attributes: map[string]any{"name": name},
		})
	}
	mock.SetResponse(resolver.MetricsPath, testutil.NewJSONResponse(http.StatusOK, testutil.ListDocument("", resources...)))
}

func serveAllMetrics(mock *testutil.MockKlaviyo) {
	serveMetrics(mock,
		resolver.MetricPlacedOrder,
		resolver.MetricSubscribedToList,
		resolver.MetricUnsubscribedList,
		resolver.MetricOpenedEmail,
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	_ = json.NewEncoder(w).Encode(v)
}

type requestAttributes struct {
	MetricID     string   `json:"metric_id"`
	Measurements []string `json:"measurements"`
	Interval     string   `json:"interval"`
	Filter       any      `json:"filter"`
	Statistics   []string `json:"statistics"`
}

func decodeAttributes(t *testing.T, body []byte) requestAttributes {
	t.Helper()

	var envelope struct {
		Data struct {
			Attributes requestAttributes `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Data.Attributes
}

// serveAggregates answers /metric-aggregates/ with measurements per metric ID.
func serveAggregates(t *testing.T, mock *testutil.MockKlaviyo, byMetric map[string]map[string][]any) {
	mock.SetHandler(api.MetricAggregatesPath, func(w http.ResponseWriter, r *http.Request) {
		attrs := decodeAttributes(t, readBody(t, r))

		measurements, ok := byMetric[attrs.MetricID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"type": "metric-aggregate",
				"attributes": map[string]any{
					"dates": testDates,
					"data": []map[string]any{
						{"dimensions": []string{}, "measurements": measurements},
					},
				},
			},
		})
	})
}

// reportIDs extracts the IDs of a contains-any(field,[...]) filter.
func reportIDs(t *testing.T, filter string) []string {
	t.Helper()

	open := strings.Index(filter, "[")
	require.GreaterOrEqual(t, open, 0, "filter %q has no id list", filter)

	var ids []string
	require.NoError(t, json.Unmarshal([]byte(filter[open:len(filter)-1]), &ids))
	return ids
}

func readBody(t *testing.T, r *http.Request) []byte {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return body
}

// serveValuesReport answers a values report with rows(id) for every
// requested id.
func serveValuesReport(t *testing.T, mock *testutil.MockKlaviyo, kind api.ReportKind, rows func(id string) []map[string]any) {
	mock.SetHandler(kind.Path(), func(w http.ResponseWriter, r *http.Request) {
		attrs := decodeAttributes(t, readBody(t, r))
		filter, _ := attrs.Filter.(string)

		results := []map[string]any{}
		for _, id := range reportIDs(t, filter) {
			for _, stats := range rows(id) {
				results = append(results, map[string]any{
					"groupings":  map[string]string{kind.IDField(): id},
					"statistics": stats,
				})
			}
		}
		writeJSON(w, map[string]any{
			"data": map[string]any{
				"type":       string(kind),
				"attributes": map[string]any{"results": results},
			},
		})
	})
}

// serveListing answers a listing endpoint with resources split into pages of
// pageSize, linked by links.next.
func serveListing(mock *testutil.MockKlaviyo, path string, pageSize int, resources []testutil.Resource) {
	mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if cursor := r.URL.Query().Get("page[cursor]"); cursor != "" {
			_, _ = fmt.Sscanf(cursor, "p%d", &page)
		}

		start := min(page*pageSize, len(resources))
		end := min(start+pageSize, len(resources))
		next := ""
		if end < len(resources) {
			next = fmt.Sprintf("%s%s?page[cursor]=p%d", mock.URL(), path, page+1)
		}

		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(testutil.ListDocument(next, resources[start:end]...)))
	})
}

func makeResources(typ string, n int, attrs func(i int) map[string]any) []testutil.Resource {
	out := make([]testutil.Resource, n)
	for i := range out {
		out[i] = testutil.Resource{Type: typ, ID: fmt.Sprintf("%s-%02d", typ, i), Attributes: attrs(i)}
	}
	return out
}
