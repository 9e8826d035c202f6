// Package metrics exposes the Prometheus registry and HTTP handler for pagedlist.
// All metrics are defined in their respective packages (pager, source, client,
// cache, ratelimit) and registered via promauto.
//
// Pager Metrics (pkg/pager):
//   - pagedlist_pager_fetches_total{outcome} (Counter): Settled fetches (loaded, failed)
//   - pagedlist_pager_stale_responses_total (Counter): Read results discarded as stale
//   - pagedlist_pager_cancellations_total (Counter): In-flight fetches cancelled by the caller
//   - pagedlist_pager_fetch_duration_seconds (Histogram): Duration of accepted fetches
//
// Source Metrics (pkg/source, WithMetrics middleware):
//   - pagedlist_source_reads_total{outcome} (Counter): Reads by outcome (ok, canceled, transport, status, decode, error)
//   - pagedlist_source_read_duration_seconds (Histogram): Read duration
//
// Request Metrics (pkg/client):
//   - pagedlist_http_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pagedlist_http_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - pagedlist_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pagedlist_http_retries_total{error_class} (Counter): Retry attempts by error class
//   - pagedlist_http_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pagedlist_http_retry_exhausted_total{error_class} (Counter): Requests that exhausted their retries
//
// Cache Metrics (pkg/cache):
//   - pagedlist_cache_hits_total{kind} (Counter): Responses served from cache (fresh, revalidated)
//   - pagedlist_cache_misses_total (Counter): Cache misses
//   - pagedlist_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - pagedlist_conditional_requests_total (Counter): Conditional requests sent
//   - pagedlist_304_responses_total (Counter): 304 Not Modified responses
//   - pagedlist_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagedlist_rate_limit_remaining{scope} (Gauge): Requests remaining in the server window
//   - pagedlist_rate_limit_blocks_total{scope} (Counter): Requests blocked on an exhausted budget
//   - pagedlist_rate_limit_throttles_total{scope} (Counter): Requests delayed on a low budget
//   - pagedlist_pacer_wait_seconds (Histogram): Time spent waiting for the local pacer
//
// Example Prometheus Queries:
//
//	# Stale response ratio
//	rate(pagedlist_pager_stale_responses_total[5m]) / rate(pagedlist_pager_fetches_total[5m])
//
//	# Cache hit rate
//	sum(rate(pagedlist_cache_hits_total[5m])) /
//	(sum(rate(pagedlist_cache_hits_total[5m])) + sum(rate(pagedlist_cache_misses_total[5m])))
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(pagedlist_http_request_duration_seconds_bucket[5m]))
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all pagedlist metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source Handler serves metrics from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}
