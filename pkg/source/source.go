package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for item source reads.
var (
	sourceReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedlist_source_reads_total",
		Help: "Total item source reads by outcome",
	}, []string{"outcome"})

	sourceReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagedlist_source_read_duration_seconds",
		Help:    "Item source read duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// ItemSource reads a window of items. It is the collaborator a fetcher uses
// to reach whatever transport holds the list.
type ItemSource interface {
	// Read returns at most limit items starting at offset.
	Read(ctx context.Context, offset, limit int) ([]Item, error)
}

// ReadFunc adapts an ordinary function to ItemSource.
type ReadFunc func(ctx context.Context, offset, limit int) ([]Item, error)

// Read calls f(ctx, offset, limit).
func (f ReadFunc) Read(ctx context.Context, offset, limit int) ([]Item, error) {
	return f(ctx, offset, limit)
}

// Middleware decorates an ItemSource.
type Middleware func(next ItemSource) ItemSource

// Chain wraps src with the given middlewares. The first middleware is the
// outermost one and sees each read first.
func Chain(src ItemSource, mws ...Middleware) ItemSource {
	for i := len(mws) - 1; i >= 0; i-- {
		src = mws[i](src)
	}
	return src
}

// WithLogging logs every read at debug level and failures at warn level.
func WithLogging(logger zerolog.Logger) Middleware {
	return func(next ItemSource) ItemSource {
		return ReadFunc(func(ctx context.Context, offset, limit int) ([]Item, error) {
			start := time.Now()
			items, err := next.Read(ctx, offset, limit)
			if err != nil {
				logger.Warn().
					Err(err).
					Int("offset", offset).
					Int("limit", limit).
					Str("error_kind", string(KindOf(err))).
					Dur("duration", time.Since(start)).
					Msg("Item source read failed")
				return nil, err
			}
			logger.Debug().
				Int("offset", offset).
				Int("limit", limit).
				Int("items", len(items)).
				Dur("duration", time.Since(start)).
				Msg("Item source read")
			return items, nil
		})
	}
}

// WithMetrics records read counts and durations.
func WithMetrics() Middleware {
	return func(next ItemSource) ItemSource {
		return ReadFunc(func(ctx context.Context, offset, limit int) ([]Item, error) {
			start := time.Now()
			items, err := next.Read(ctx, offset, limit)
			sourceReadDuration.Observe(time.Since(start).Seconds())

			outcome := "ok"
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				outcome = "canceled"
			case KindOf(err) != "":
				outcome = string(KindOf(err))
			default:
				outcome = "error"
			}
			sourceReadsTotal.WithLabelValues(outcome).Inc()
			return items, err
		})
	}
}

// WithValidation rejects negative windows before they reach the transport.
func WithValidation() Middleware {
	return func(next ItemSource) ItemSource {
		return ReadFunc(func(ctx context.Context, offset, limit int) ([]Item, error) {
			if offset < 0 {
				return nil, fmt.Errorf("invalid offset %d", offset)
			}
			if limit <= 0 {
				return nil, fmt.Errorf("invalid limit %d", limit)
			}
			return next.Read(ctx, offset, limit)
		})
	}
}

// Slice is an in-memory ItemSource backed by a fixed list.
type Slice []Item

// Read returns the window [offset, offset+limit) of the slice.
func (s Slice) Read(ctx context.Context, offset, limit int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d", offset, limit)
	}
	if offset >= len(s) {
		return []Item{}, nil
	}
	end := offset + limit
	if end > len(s) {
		end = len(s)
	}
	out := make([]Item, end-offset)
	copy(out, s[offset:end])
	return out, nil
}
