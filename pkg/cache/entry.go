// Package cache stores item page responses in Redis and revalidates them
// with ETag / Last-Modified conditional requests.
//
// A stored page is fresh until its Expires time and may then be served only
// after the origin confirms it with 304 Not Modified. Entries stay in Redis
// for a stale window past expiry so they remain available for revalidation:
//
//	manager := cache.NewManager(redisClient)
//	key := cache.CacheKey{Endpoint: "/items", QueryParams: req.URL.Query()}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case err == cache.ErrCacheMiss:
//		// plain request
//	case entry.IsFresh():
//		return cache.EntryToResponse(entry, req), nil
//	default:
//		cache.AddConditionalHeaders(req, entry)
//	}
package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a stored item page response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for If-None-Match revalidation
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry stops being fresh
	Expires time.Time `json:"expires"`

	// LastModified for If-Modified-Since revalidation
	LastModified time.Time `json:"last_modified,omitempty"`

	// StatusCode of the stored response
	StatusCode int `json:"status_code"`

	// Headers of the stored response
	Headers http.Header `json:"headers"`

	// CachedAt is when the entry was stored or last revalidated
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true once the entry is no longer fresh.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// IsFresh returns true if the entry may be served without revalidation.
func (e *CacheEntry) IsFresh() bool {
	return !e.IsExpired()
}

// TTL returns the remaining freshness, or 0 when expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Revalidatable reports whether a conditional request can be made for the entry.
func (e *CacheEntry) Revalidatable() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
