package client

import (
	"encoding/json"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// secondsHint matches natural-language hints such as
// "Request was throttled. Expected available in 7 seconds."
var secondsHint = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:seconds?|secs?|s)\b`)

// throttleBody is the subset of a JSON:API error document that can carry a
// retry delay.
type throttleBody struct {
	RetryAfter json.RawMessage `json:"retry_after"`
	Meta       struct {
		RetryAfter json.RawMessage `json:"retry_after"`
	} `json:"meta"`
	Errors []struct {
		Detail string `json:"detail"`
		Meta   struct {
			RetryAfter json.RawMessage `json:"retry_after"`
		} `json:"meta"`
	} `json:"errors"`
}

// retryHint extracts a server-provided retry delay from a 429 response. It
// checks the Retry-After header, then structured retry_after fields, then
// "N seconds" phrases in error details. The boolean is false when the server
// gave no usable hint; that never means "retry immediately".
func retryHint(header http.Header, body []byte) (time.Duration, bool) {
	if d, ok := parseRetryAfterHeader(header.Get("Retry-After")); ok {
		return d, true
	}

	var doc throttleBody
	if len(body) == 0 || json.Unmarshal(body, &doc) != nil {
		return hintFromText(string(body))
	}

	if d, ok := secondsFromJSON(doc.RetryAfter); ok {
		return d, true
	}
	if d, ok := secondsFromJSON(doc.Meta.RetryAfter); ok {
		return d, true
	}
	for _, e := range doc.Errors {
		if d, ok := secondsFromJSON(e.Meta.RetryAfter); ok {
			return d, true
		}
	}
	for _, e := range doc.Errors {
		if d, ok := hintFromText(e.Detail); ok {
			return d, true
		}
	}

	return 0, false
}

// parseRetryAfterHeader accepts delta-seconds or an HTTP date.
func parseRetryAfterHeader(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return secondsToDuration(seconds)
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}

	return 0, false
}

// secondsFromJSON reads a number or numeric string.
func secondsFromJSON(raw json.RawMessage) (time.Duration, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return secondsToDuration(seconds)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if seconds, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return secondsToDuration(seconds)
		}
		return hintFromText(text)
	}

	return 0, false
}

func hintFromText(text string) (time.Duration, bool) {
	match := secondsHint.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return secondsToDuration(seconds)
}

func secondsToDuration(seconds float64) (time.Duration, bool) {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	// Clamp before converting so absurd values cannot overflow.
	seconds = math.Min(seconds, 86400)
	return time.Duration(seconds * float64(time.Second)), true
}
