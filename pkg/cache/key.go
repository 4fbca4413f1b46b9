package cache

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const keyPrefix = "klaviyo:cache:"

// Key identifies a cached response.
type Key struct {
	// Namespace scopes the key, normally a credential fingerprint.
	Namespace string

	// Method is the HTTP method.
	Method string

	// Endpoint is the API path (e.g. "/lists/").
	Endpoint string

	// Query holds the query parameters.
	Query url.Values
}

// canonical renders the request in a deterministic form. url.Values.Encode
// sorts by parameter name.
func (k Key) canonical() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(k.Method))
	b.WriteByte(' ')
	b.WriteString("/" + strings.Trim(k.Endpoint, "/") + "/")
	if len(k.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(k.Query.Encode())
	}
	return b.String()
}

// namespacePattern matches every key of namespace. Namespaces are hex
// fingerprints, so they carry no glob characters.
func namespacePattern(namespace string) string {
	return keyPrefix + namespace + ":*"
}

// String returns the Redis key:
//
//	klaviyo:cache:<namespace>:<xxhash of method, endpoint and sorted query>
func (k Key) String() string {
	sum := xxhash.Sum64String(k.canonical())
	return keyPrefix + k.Namespace + ":" + strconv.FormatUint(sum, 16)
}
