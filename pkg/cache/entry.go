package cache

import (
	"net/http"
	"time"
)

// Entry is a cached API response.
type Entry struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// CachedAt is when the response was stored.
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// NewEntry builds an entry that expires ttl from now.
func NewEntry(statusCode int, header http.Header, body []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Body:       body,
		StatusCode: statusCode,
		Header:     header.Clone(),
		CachedAt:   now,
		Expires:    now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
