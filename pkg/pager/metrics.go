package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts settled fetches by outcome (loaded, failed)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagedlist_pager_fetches_total",
			Help: "Total number of page fetches that settled, by outcome",
		},
		[]string{"outcome"},
	)

	// StaleResponsesTotal counts responses discarded because a newer fetch started
	StaleResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_pager_stale_responses_total",
			Help: "Total number of read results discarded as stale",
		},
	)

	// CancellationsTotal counts explicit cancellations of in-flight fetches
	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagedlist_pager_cancellations_total",
			Help: "Total number of in-flight fetches cancelled by the caller",
		},
	)

	// FetchDuration tracks read latency of accepted fetches
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagedlist_pager_fetch_duration_seconds",
			Help:    "Duration of accepted page fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)
