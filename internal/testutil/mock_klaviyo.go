// Package testutil provides testing utilities for the Klaviyo client.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request the mock received.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockKlaviyo is a configurable mock Klaviyo API server for testing.
// Handlers are keyed by URL path, e.g. "/metrics/".
type MockKlaviyo struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockKlaviyo creates a new mock server.
func NewMockKlaviyo() *MockKlaviyo {
	mock := &MockKlaviyo{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		// Handlers can read the body again.
		r.Body = io.NopCloser(bytes.NewReader(body))

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the client's base URL.
func (m *MockKlaviyo) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockKlaviyo) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockKlaviyo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockKlaviyo) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockKlaviyo) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, resp.write)
}

// SetSequence serves the responses in order; the last one repeats.
func (m *MockKlaviyo) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		resp.write(w, r)
	})
}

// SetJSON serves v as a JSON:API document with status 200.
func (m *MockKlaviyo) SetJSON(path string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.SetResponse(path, NewJSONResponse(http.StatusOK, string(data)))
}

// Requests returns a copy of every recorded request.
func (m *MockKlaviyo) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockKlaviyo) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// PathCount returns the number of requests made to path.
func (m *MockKlaviyo) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.requests {
		if r.Path == path {
			count++
		}
	}
	return count
}

// PathRequests returns the recorded requests for path.
func (m *MockKlaviyo) PathRequests(path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockKlaviyo) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1].Header
}

// defaultHandler answers unknown paths with a JSON:API 404.
func (m *MockKlaviyo) defaultHandler(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(http.StatusNotFound, `{"errors":[{"status":"404","title":"Not found.","detail":"No route for `+r.URL.Path+`"}]}`).write(w, r)
}

func (resp MockResponse) write(w http.ResponseWriter, r *http.Request) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewJSONResponse creates a JSON:API response with quota headers.
func NewJSONResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":        "application/vnd.api+json",
			"RateLimit-Limit":     "150",
			"RateLimit-Remaining": "149",
			"RateLimit-Reset":     "60",
		},
	}
}

// NewRateLimitResponse creates a 429 whose error detail carries the hint,
// e.g. "Request was throttled. Expected available in 1 second."
func NewRateLimitResponse(detail string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"errors": []map[string]string{{
			"status": "429",
			"code":   "throttled",
			"title":  "Request was throttled.",
			"detail": detail,
		}},
	})
	return NewJSONResponse(http.StatusTooManyRequests, string(body))
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewJSONResponse(http.StatusInternalServerError, `{"errors":[{"status":"500","title":"A server error occurred."}]}`)
}

// NewUnauthorizedResponse creates a 401 response for an invalid API key.
func NewUnauthorizedResponse() MockResponse {
	return NewJSONResponse(http.StatusUnauthorized, `{"errors":[{"status":"401","code":"not_authenticated","title":"Authentication credentials were not provided.","detail":"Missing or invalid private key."}]}`)
}

// Resource is a JSON:API resource object.
type Resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// ListDocument renders a JSON:API collection. next, when non-empty, becomes
// links.next.
func ListDocument(next string, resources ...Resource) string {
	doc := map[string]any{
		"data":  resources,
		"links": map[string]any{"next": nil},
	}
	if resources == nil {
		doc["data"] = []Resource{}
	}
	if next != "" {
		doc["links"] = map[string]any{"next": next}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(data)
}
