package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is used when the response carries no max-age directive.
const DefaultTTL = 5 * time.Minute

// TTLFromHeader derives how long a response may be cached from its
// Cache-Control header. It returns false for responses that must not be
// stored (no-store, no-cache or max-age=0).
func TTLFromHeader(header http.Header, fallback time.Duration) (time.Duration, bool) {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	cc := header.Get("Cache-Control")
	if cc == "" {
		return fallback, true
	}

	for _, directive := range strings.Split(cc, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))

		switch {
		case directive == "no-store", directive == "no-cache":
			return 0, false
		case strings.HasPrefix(directive, "max-age="):
			seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || seconds < 0 {
				continue
			}
			if seconds == 0 {
				return 0, false
			}
			return time.Duration(seconds) * time.Second, true
		}
	}

	return fallback, true
}
