package client

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultRevision is the API revision sent when none is configured.
const DefaultRevision = "2024-10-15"

// Credential is an API token plus the API revision it is used with. It is
// immutable for the lifetime of a Client.
type Credential struct {
	Token    string
	Revision string
}

// Fingerprint returns a stable, non-reversible identifier for the token.
// It namespaces caches and quota state per account.
func (c Credential) Fingerprint() string {
	return strconv.FormatUint(xxhash.Sum64String(c.Token), 16)
}

// String never reveals the token.
func (c Credential) String() string {
	return "credential(" + c.Fingerprint() + ")"
}

// authorization renders the Authorization header. Private API keys
// (pk_...) use the Klaviyo-API-Key scheme, OAuth access tokens use Bearer.
func (c Credential) authorization() string {
	if strings.HasPrefix(c.Token, "pk_") {
		return "Klaviyo-API-Key " + c.Token
	}
	return "Bearer " + c.Token
}
