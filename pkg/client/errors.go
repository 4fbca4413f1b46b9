package client

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failed request.
type Kind string

const (
	// KindAuth is an invalid or expired credential (401/403). It is the only
	// failure that aborts an extraction run.
	KindAuth Kind = "auth"

	// KindRateLimitExceeded means 429 persisted past the retry budget.
	KindRateLimitExceeded Kind = "rate_limit_exceeded"

	// KindTransientNetwork is a timeout or connection failure.
	KindTransientNetwork Kind = "transient_network"

	// KindNotFound is a 404: an expected "missing feature" condition.
	KindNotFound Kind = "not_found"

	// KindMalformedResponse is a response body of unexpected shape.
	KindMalformedResponse Kind = "malformed_response"

	// KindClient is any other 4xx.
	KindClient Kind = "client"

	// KindServer is a 5xx.
	KindServer Kind = "server"
)

// Sentinel errors for errors.Is. A *RequestError matches the sentinel of its Kind.
var (
	ErrAuth              = errors.New("authentication failed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrTransientNetwork  = errors.New("transient network error")
	ErrNotFound          = errors.New("not found")
	ErrMalformedResponse = errors.New("malformed response")
	ErrClient            = errors.New("client error")
	ErrServer            = errors.New("server error")

	// ErrRetryExhausted is matched by any failure that used up its retries.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends while a
	// request waits for the limiter or a backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

var kindSentinels = map[Kind]error{
	KindAuth:              ErrAuth,
	KindRateLimitExceeded: ErrRateLimitExceeded,
	KindTransientNetwork:  ErrTransientNetwork,
	KindNotFound:          ErrNotFound,
	KindMalformedResponse: ErrMalformedResponse,
	KindClient:            ErrClient,
	KindServer:            ErrServer,
}

// RequestError is a typed request failure.
type RequestError struct {
	Kind       Kind
	StatusCode int
	Method     string
	Endpoint   string

	// Attempts is the number of HTTP attempts made.
	Attempts int

	// Waits is the backoff chain slept between attempts.
	Waits []time.Duration

	// Exhausted is set when the failure was retryable but retries ran out.
	Exhausted bool

	Message string
	Err     error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "klaviyo %s error", e.Kind)
	if e.Method != "" || e.Endpoint != "" {
		fmt.Fprintf(&b, " on %s %s", e.Method, e.Endpoint)
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Exhausted {
		fmt.Fprintf(&b, " after %d attempts, waits %v", e.Attempts, e.Waits)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind, and ErrRetryExhausted when
// retries ran out.
func (e *RequestError) Is(target error) bool {
	if target == ErrRetryExhausted {
		return e.Exhausted
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the Kind of a *RequestError anywhere in err's chain, or "".
func KindOf(err error) Kind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// kindForStatus maps a non-2xx HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	case status == 429:
		return KindRateLimitExceeded
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// shouldRetry determines if a failure of the given kind may be retried.
// Server and network failures are retried only for idempotent requests.
func shouldRetry(kind Kind, idempotent bool) bool {
	switch kind {
	case KindRateLimitExceeded:
		return true
	case KindServer, KindTransientNetwork:
		return idempotent
	default:
		// Auth, not-found and other 4xx will not change on retry.
		return false
	}
}
