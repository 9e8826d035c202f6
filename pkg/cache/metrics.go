package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts page responses served from cache, by kind (fresh, revalidated)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedlist_cache_hits_total",
			Help: "Total number of page responses served from cache",
		},
		[]string{"kind"},
	)

	// CacheMisses counts lookups that found nothing
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// StoredBytes counts bytes written to the cache
	StoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_cache_stored_bytes_total",
			Help: "Total bytes written to the page cache",
		},
	)

	// ConditionalRequestsSent counts requests sent with If-None-Match/If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_conditional_requests_total",
			Help: "Total number of conditional page requests sent",
		},
	)

	// NotModifiedResponses counts 304 responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors counts failed cache operations
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedlist_cache_errors_total",
			Help: "Total number of page cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
