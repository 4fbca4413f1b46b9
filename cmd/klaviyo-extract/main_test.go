package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/internal/testutil"
	"github.com/Sternrassler/klaviyo-extractor/pkg/extract"
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	"github.com/Sternrassler/klaviyo-extractor/pkg/resolver"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type staticQuota struct {
	tracker *ratelimit.QuotaTracker
}

func (s staticQuota) Quota() *ratelimit.QuotaTracker { return s.tracker }

func testDataset(t *testing.T) extract.Dataset {
	t.Helper()

	dr, err := extract.ParseDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	return extract.Dataset{
		RunID: "run-1",
		Range: dr,
		Revenue: extract.Ok(extract.Revenue{
			MetricID:          "PO",
			Total:             1000,
			Orders:            20,
			AverageOrderValue: 50,
		}),
		Campaigns: extract.Degrade[extract.Campaigns](extract.DegradeReason{Kind: "not_found", Message: "no campaigns"}),
		Flows: extract.Ok(extract.Flows{
			Items:  []extract.Flow{{ID: "F1", Name: "Welcome"}},
			Totals: extract.EntityStats{ConversionValue: 120},
		}),
		Lists:       extract.Ok(extract.Lists{Subscribed: 10, Unsubscribed: 2, NetGrowth: 8}),
		Forms:       extract.Ok(extract.Forms{}),
		FlowDetails: extract.Ok(extract.FlowDetails{Items: []extract.FlowDetail{{FlowID: "F1", Name: "Welcome"}}}),
		Attribution: extract.Attribution{Attributed: 300, Unattributed: 700, Estimated: true, Ratio: 0.30},
	}
}

// extractEnv points the CLI at mock and keeps the developer's environment out.
func extractEnv(t *testing.T, mock *testutil.MockKlaviyo) string {
	t.Helper()

	t.Setenv("KLAVIYO_API_KEY", "pk_test_1234567890")
	t.Setenv("KLAVIYO_BASE_URL", mock.URL())
	t.Setenv("KLAVIYO_BATCH_PAUSE", "1ms")
	t.Setenv("KLAVIYO_REDIS_ADDR", "")
	t.Setenv("KLAVIYO_METRICS_ADDR", "")
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    outputFormat
		wantErr bool
	}{
		{in: "json", want: formatJSON},
		{in: " YAML ", want: formatYAML},
		{in: "yml", want: formatYAML},
		{in: "table", want: formatTable},
		{in: "csv", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, formatJSON, testDataset(t)))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc["run_id"])
	campaigns := doc["campaigns"].(map[string]any)
	assert.Equal(t, "not_found", campaigns["degraded"].(map[string]any)["kind"])
	assert.Equal(t, true, doc["attribution"].(map[string]any)["estimated"])
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, formatYAML, testDataset(t)))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "run-1", doc["run_id"])
	revenue := doc["revenue"].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, 20, revenue["orders"])
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, formatTable, testDataset(t)))
	out := buf.String()

	for _, want := range []string{
		"run-1",
		"revenue",
		"1000.00 from 20 orders",
		"degraded",
		"not_found: no campaigns",
		"+10 / -2 (net 8)",
		"Welcome",
		"estimated",
		"30% of revenue (estimate)",
	} {
		assert.Contains(t, out, want)
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	newRouter(staticQuota{}).ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	newRouter(staticQuota{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "klaviyo_")
}

func TestQuotaEndpoint(t *testing.T) {
	t.Run("without redis", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter(staticQuota{}).ServeHTTP(w, httptest.NewRequest("GET", "/quota", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("with redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		tracker := ratelimit.NewQuotaTracker(rdb, "acct", zerolog.Nop())
		headers := http.Header{}
		headers.Set(ratelimit.HeaderLimit, "150")
		headers.Set(ratelimit.HeaderRemaining, "120")
		require.NoError(t, tracker.UpdateFromHeaders(context.Background(), headers))

		w := httptest.NewRecorder()
		newRouter(staticQuota{tracker: tracker}).ServeHTTP(w, httptest.NewRequest("GET", "/quota", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var state quotaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.Equal(t, 150, state.Limit)
		assert.Equal(t, 120, state.Remaining)
		assert.True(t, state.IsHealthy)
		assert.False(t, state.Stale)
	})

	t.Run("stale snapshot", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		tracker := ratelimit.NewQuotaTracker(rdb, "acct", zerolog.Nop())
		headers := http.Header{}
		headers.Set(ratelimit.HeaderLimit, "150")
		headers.Set(ratelimit.HeaderRemaining, "90")
		require.NoError(t, tracker.UpdateFromHeaders(context.Background(), headers))

		old := time.Now().Add(-2 * quotaStaleAfter).UnixMilli()
		require.NoError(t, mr.Set("klaviyo:quota:acct:last_update", strconv.FormatInt(old, 10)))

		w := httptest.NewRecorder()
		newRouter(staticQuota{tracker: tracker}).ServeHTTP(w, httptest.NewRequest("GET", "/quota", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var state quotaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		assert.Equal(t, 90, state.Remaining)
		assert.True(t, state.Stale)
		assert.Contains(t, w.Body.String(), `"stale":true`)
	})
}

func TestStartServer(t *testing.T) {
	srv, err := startServer("127.0.0.1:0", newRouter(staticQuota{}), zerolog.Nop())
	require.NoError(t, err)
	shutdownServer(srv, zerolog.Nop())

	_, err = startServer("256.0.0.1:bad", newRouter(staticQuota{}), zerolog.Nop())
	assert.Error(t, err)
}

func TestRun_Tiers(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"tiers"}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	for _, want := range []string{"small", "medium", "large", "xl", "3500"} {
		assert.Contains(t, stdout.String(), want)
	}
	assert.Less(t, strings.Index(stdout.String(), "small"), strings.Index(stdout.String(), "xl"))
}

func TestRun_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing start", args: []string{"extract", "--end", "2024-01-31"}},
		{name: "bad format", args: []string{"extract", "--start", "2024-01-01", "--end", "2024-01-31", "--format", "csv"}},
		{name: "end before start", args: []string{"extract", "--start", "2024-02-01", "--end", "2024-01-01"}},
		{name: "unknown command", args: []string{"load"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)

			assert.Equal(t, exitError, code)
			assert.Contains(t, stderr.String(), "Error:")
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRun_AuthAbort(t *testing.T) {
	mock := testutil.NewMockKlaviyo()
	defer mock.Close()
	mock.SetResponse(resolver.MetricsPath, testutil.NewUnauthorizedResponse())
	envFile := extractEnv(t, mock)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"extract", "--start", "2024-01-01", "--end", "2024-01-02",
		"--env-file", envFile, "--tier", "xl",
	}, &stdout, &stderr)

	assert.Equal(t, exitAborted, code)
	assert.Empty(t, stdout.String(), "no dataset on abort")
	assert.Contains(t, stderr.String(), "extraction aborted")
	assert.Equal(t, 1, mock.PathCount(resolver.MetricsPath), "auth errors are not retried")
	assert.NotContains(t, stderr.String(), "pk_test_1234567890")
}

func TestRun_DegradedExtraction(t *testing.T) {
	mock := testutil.NewMockKlaviyo()
	defer mock.Close()
	// No metrics and no listings: every category degrades, the run still completes.
	mock.SetResponse(resolver.MetricsPath, testutil.NewJSONResponse(http.StatusOK, testutil.ListDocument("")))
	envFile := extractEnv(t, mock)

	mr := miniredis.RunT(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"extract", "--start", "2024-01-01", "--end", "2024-01-02",
		"--env-file", envFile, "--tier", "xl", "--redis-addr", mr.Addr(),
		"--metrics-addr", "127.0.0.1:0", "--timeout", "30s",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))

	revenue := doc["revenue"].(map[string]any)
	assert.Equal(t, extract.ReasonMetricUnavailable, revenue["degraded"].(map[string]any)["kind"])
	assert.Equal(t, true, doc["attribution"].(map[string]any)["estimated"])
	assert.NotEmpty(t, doc["run_id"])

	assert.Contains(t, stderr.String(), "Extraction progress")
	assert.Contains(t, stderr.String(), "DONE")
}

func TestRun_Timeout(t *testing.T) {
	mock := testutil.NewMockKlaviyo()
	defer mock.Close()
	slow := testutil.NewJSONResponse(http.StatusOK, testutil.ListDocument(""))
	slow.Delay = 200 * time.Millisecond
	mock.SetResponse(resolver.MetricsPath, slow)
	envFile := extractEnv(t, mock)

	var stdout, stderr bytes.Buffer
	start := time.Now()
	code := run(context.Background(), []string{
		"extract", "--start", "2024-01-01", "--end", "2024-01-02",
		"--env-file", envFile, "--tier", "xl", "--timeout", "50ms",
	}, &stdout, &stderr)

	// A timed-out run degrades every category; it is not an auth abort.
	assert.Equal(t, exitOK, code, stderr.String())
	assert.Less(t, time.Since(start), 5*time.Second)
}
