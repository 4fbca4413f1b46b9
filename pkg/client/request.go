package client

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Request describes one API call.
type Request struct {
	// Method defaults to GET.
	Method string

	// Endpoint is a path relative to the base URL ("/metrics/") or an
	// absolute URL such as a pagination link.
	Endpoint string

	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body any

	// Idempotent marks a non-GET request as safe to retry after 5xx and
	// network failures. Report and aggregate POSTs are read-only queries.
	Idempotent bool
}

func (r Request) idempotent() bool {
	return r.Idempotent || r.Method == http.MethodGet || r.Method == http.MethodHead
}

// Response is a successful (2xx) API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Endpoint is the path the response came from.
	Endpoint string

	// FromCache is set when the body was served from the response cache.
	FromCache bool
}

// Decode unmarshals the JSON body into v. A body of unexpected shape yields a
// *RequestError of KindMalformedResponse.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &RequestError{
			Kind:       KindMalformedResponse,
			StatusCode: r.StatusCode,
			Endpoint:   r.Endpoint,
			Message:    "decode response body",
			Err:        err,
		}
	}
	return nil
}
