// Package client provides the Klaviyo HTTP client with rate limiting,
// 429 backoff, typed errors and optional response caching.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/pkg/cache"
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Klaviyo REST API root.
	DefaultBaseURL = "https://a.klaviyo.com/api"

	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "klaviyo-extractor/1.0"

	contentTypeJSONAPI = "application/vnd.api+json"

	// maxBodyBytes bounds how much of a response body is read into memory.
	maxBodyBytes = 32 << 20

	// quotaBuffer bounds the quota updates waiting for Redis; further
	// updates are dropped until the writer catches up.
	quotaBuffer = 16

	// quotaWriteTimeout bounds one quota write in the background writer.
	quotaWriteTimeout = 2 * time.Second
)

// Client is the Klaviyo API client. All requests issued through one Client
// share its rate limiter.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *ratelimit.Limiter
	quota      *ratelimit.QuotaTracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
	observers  []Observer

	quotaUpdates chan http.Header
	closed       chan struct{}
	closeOnce    sync.Once

	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root (DefaultBaseURL in production)
	BaseURL string

	// Credential authenticates every request (REQUIRED)
	Credential Credential

	// Budget is the client-side rate budget, normally from ratelimit.TierBudget
	Budget ratelimit.Budget

	// Limiter, if set, replaces the limiter built from Budget so several
	// clients can share one quota
	Limiter *ratelimit.Limiter

	UserAgent string

	// Retry bounds 429/5xx/network retries
	Retry RetryPolicy

	// RequestTimeout applies to each attempt, independent of the caller's context
	RequestTimeout time.Duration

	// Redis enables the quota tracker and the GET response cache (optional)
	Redis    *redis.Client
	CacheTTL time.Duration

	// Observer receives request events in addition to the built-in
	// logging and metrics (optional)
	Observer Observer
}

// DefaultConfig returns a safe default configuration for the medium tier.
func DefaultConfig(cred Credential) Config {
	budget, _ := ratelimit.TierBudget(string(ratelimit.TierMedium))
	if cred.Revision == "" {
		cred.Revision = DefaultRevision
	}

	return Config{
		BaseURL:        DefaultBaseURL,
		Credential:     cred,
		Budget:         budget,
		UserAgent:      DefaultUserAgent,
		Retry:          DefaultRetryPolicy(),
		RequestTimeout: 30 * time.Second,
		CacheTTL:       cache.DefaultTTL,
	}
}

// New creates a new Klaviyo client.
func New(cfg Config) (*Client, error) {
	if cfg.Credential.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}

	if cfg.Credential.Revision == "" {
		return nil, fmt.Errorf("api revision is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}

	if cfg.Retry.MaxDelay <= 0 {
		return nil, fmt.Errorf("max_delay must be > 0 (got %s)", cfg.Retry.MaxDelay)
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be > 0 (got %s)", cfg.RequestTimeout)
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	logger := log.With().
		Str("component", "klaviyo-client").
		Str("account", cfg.Credential.Fingerprint()).
		Logger()

	limiter := cfg.Limiter
	if limiter == nil {
		if limiter, err = ratelimit.NewLimiter(cfg.Budget, logger); err != nil {
			return nil, fmt.Errorf("rate budget: %w", err)
		}
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
		observers:  []Observer{telemetry{logger: logger}},
		sleep:      sleepContext,
		closed:     make(chan struct{}),
	}

	if cfg.Observer != nil {
		c.observers = append(c.observers, cfg.Observer)
	}

	if cfg.Redis != nil {
		c.quota = ratelimit.NewQuotaTracker(cfg.Redis, cfg.Credential.Fingerprint(), logger)
		c.quotaUpdates = make(chan http.Header, quotaBuffer)
		go c.writeQuota()
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return c, nil
}

// Get performs an idempotent GET request.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodGet, Endpoint: endpoint, Query: query})
}

// Query performs a read-only POST (reports, aggregates). It is retried like a GET.
func (c *Client) Query(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.Execute(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body, Idempotent: true})
}

// Execute performs a request through the rate limiter.
//
// 429 responses are retried after the server's hint or 2^attempt * BaseDelay,
// capped at MaxDelay, up to Retry.MaxRetries times. 5xx and network failures
// follow the same path for idempotent requests. Every other non-2xx status
// fails immediately. Failures are *RequestError values.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := c.resolve(req.Endpoint, req.Query)
	if err != nil {
		return nil, &RequestError{Kind: KindClient, Method: req.Method, Endpoint: req.Endpoint, Message: "invalid endpoint", Err: err}
	}
	endpoint := c.endpointLabel(target)

	var body []byte
	if req.Body != nil {
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, &RequestError{Kind: KindClient, Method: req.Method, Endpoint: endpoint, Message: "encode request body", Err: err}
		}
	}

	idempotent := req.idempotent()

	cacheKey, cacheable := c.cacheKey(req.Method, target)
	if cacheable && !cacheBypassed(ctx) {
		if resp, ok := c.fromCache(ctx, cacheKey, endpoint); ok {
			return resp, nil
		}
	}

	var waits []time.Duration
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		c.notify(Event{Type: EventAttempt, Method: req.Method, Endpoint: endpoint, Attempt: attempt})

		start := time.Now()
		resp, err := c.do(ctx, req.Method, target, body)
		elapsed := time.Since(start)

		var failure *RequestError
		var hint time.Duration

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			failure = &RequestError{Kind: KindTransientNetwork, Message: "request failed", Err: err}

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			resp.Endpoint = endpoint
			c.recordQuota(ctx, resp.Header)
			if cacheable {
				c.storeCache(ctx, cacheKey, resp)
			}
			c.notify(Event{
				Type:       EventSuccess,
				Method:     req.Method,
				Endpoint:   endpoint,
				Attempt:    attempt,
				StatusCode: resp.StatusCode,
				Duration:   elapsed,
			})
			return resp, nil

		default:
			c.recordQuota(ctx, resp.Header)
			failure = &RequestError{
				Kind:       kindForStatus(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Message:    errorDetail(resp.Body),
			}
			if failure.Kind == KindAuth {
				c.purgeCache(ctx)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				hint, _ = retryHint(resp.Header, resp.Body)
			}
		}

		failure.Method = req.Method
		failure.Endpoint = endpoint
		failure.Attempts = attempt + 1

		retryable := shouldRetry(failure.Kind, idempotent)
		if !retryable || attempt >= c.config.Retry.MaxRetries {
			failure.Exhausted = retryable
			failure.Waits = waits
			c.notify(Event{
				Type:       EventFailure,
				Method:     req.Method,
				Endpoint:   endpoint,
				Attempt:    attempt,
				StatusCode: failure.StatusCode,
				Kind:       failure.Kind,
				Duration:   elapsed,
				Err:        failure,
			})
			return nil, failure
		}

		wait := c.config.Retry.Delay(attempt, hint)
		waits = append(waits, wait)

		c.notify(Event{
			Type:       EventRetry,
			Method:     req.Method,
			Endpoint:   endpoint,
			Attempt:    attempt,
			StatusCode: failure.StatusCode,
			Kind:       failure.Kind,
			Wait:       wait,
			Duration:   elapsed,
			Err:        failure,
		})

		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}

// do performs one attempt under the per-request timeout and reads the body.
func (c *Client) do(ctx context.Context, method string, target *url.URL, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", c.config.Credential.authorization())
	httpReq.Header.Set("revision", c.config.Credential.Revision)
	httpReq.Header.Set("Accept", contentTypeJSONAPI)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSONAPI)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// resolve turns an endpoint into an absolute URL. Absolute URLs (pagination
// links) must point at the configured host.
func (c *Client) resolve(endpoint string, query url.Values) (*url.URL, error) {
	var target *url.URL

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		if u.Host != c.baseURL.Host {
			return nil, fmt.Errorf("host %q does not match %q", u.Host, c.baseURL.Host)
		}
		target = u
	} else {
		path := strings.Trim(endpoint, "/")
		if path == "" {
			return nil, errors.New("empty endpoint")
		}
		u := *c.baseURL
		u.Path = c.baseURL.Path + "/" + path + "/"
		target = &u
	}

	if len(query) > 0 {
		merged := target.Query()
		for key, values := range query {
			merged[key] = values
		}
		target.RawQuery = merged.Encode()
	}

	return target, nil
}

// endpointLabel returns the path relative to the base URL, e.g. "/metrics/".
func (c *Client) endpointLabel(target *url.URL) string {
	path := strings.TrimPrefix(target.Path, c.baseURL.Path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (c *Client) cacheKey(method string, target *url.URL) (cache.Key, bool) {
	if c.cache == nil || method != http.MethodGet {
		return cache.Key{}, false
	}
	return cache.Key{
		Namespace: c.config.Credential.Fingerprint(),
		Method:    method,
		Endpoint:  target.Path,
		Query:     target.Query(),
	}, true
}

func (c *Client) fromCache(ctx context.Context, key cache.Key, endpoint string) (*Response, bool) {
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		return nil, false
	}

	c.notify(Event{Type: EventCacheHit, Method: http.MethodGet, Endpoint: endpoint, StatusCode: entry.StatusCode})

	return &Response{
		StatusCode: entry.StatusCode,
		Header:     entry.Header,
		Body:       entry.Body,
		Endpoint:   endpoint,
		FromCache:  true,
	}, true
}

func (c *Client) storeCache(ctx context.Context, key cache.Key, resp *Response) {
	ttl, ok := cache.TTLFromHeader(resp.Header, c.cache.DefaultTTL())
	if !ok {
		return
	}
	if err := c.cache.Set(ctx, key, cache.NewEntry(resp.StatusCode, resp.Header, resp.Body, ttl)); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", resp.Endpoint).Msg("Failed to cache response")
	}
}

// recordQuota hands the headers to the background writer. It never waits
// on Redis: when the writer is behind, the update is dropped.
func (c *Client) recordQuota(_ context.Context, header http.Header) {
	if c.quota == nil || header.Get(ratelimit.HeaderRemaining) == "" {
		return
	}

	select {
	case c.quotaUpdates <- header.Clone():
	default:
		c.logger.Debug().Msg("Quota writer busy - dropping update")
	}
}

func (c *Client) writeQuota() {
	for {
		select {
		case <-c.closed:
			return
		case header := <-c.quotaUpdates:
			ctx, cancel := context.WithTimeout(context.Background(), quotaWriteTimeout)
			if err := c.quota.UpdateFromHeaders(ctx, header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update quota from headers")
			}
			cancel()
		}
	}
}

// purgeCache drops every cached response of a rejected credential so a
// revoked key cannot keep serving listings from Redis.
func (c *Client) purgeCache(ctx context.Context) {
	if c.cache == nil {
		return
	}

	n, err := c.cache.Purge(ctx, c.config.Credential.Fingerprint())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to purge cache after auth failure")
		return
	}
	if n > 0 {
		c.logger.Info().Int("entries", n).Msg("Purged cached responses of rejected credential")
	}
}

// notify delivers e to every observer. Observer panics are swallowed.
func (c *Client) notify(e Event) {
	for _, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn().Interface("panic", r).Msg("Observer panicked")
				}
			}()
			o.Observe(e)
		}()
	}
}

// errorDetail extracts a short message from a JSON:API error body.
func errorDetail(body []byte) string {
	var doc struct {
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &doc) == nil && len(doc.Errors) > 0 {
		if doc.Errors[0].Detail != "" {
			return doc.Errors[0].Detail
		}
		return doc.Errors[0].Title
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// Limiter returns the rate limiter shared by this client's requests.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// Quota returns the server quota tracker, or nil without Redis.
func (c *Client) Quota() *ratelimit.QuotaTracker {
	return c.quota
}

// Fingerprint identifies the client's credential without revealing it.
func (c *Client) Fingerprint() string {
	return c.config.Credential.Fingerprint()
}

// Close stops the quota writer and releases idle connections.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
