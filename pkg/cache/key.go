package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a stored page response.
type CacheKey struct {
	// Endpoint is the request path (e.g. "/items")
	Endpoint string

	// QueryParams carry the page window (e.g. offset=20, limit=10)
	QueryParams url.Values

	// Scope separates responses fetched with different credentials ("" for anonymous)
	Scope string
}

// String builds a deterministic Redis key.
// Format: pagedlist:page:<endpoint>:<k1>=<v1>:<k2>=<v2>[:scope=<scope>]
//
// Example:
//
//	pagedlist:page:items:limit=10:offset=20
func (k CacheKey) String() string {
	parts := []string{"pagedlist", "page"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, key+"="+strings.Join(values, ","))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
