package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagedlist_rate_limit_remaining",
		Help: "Requests remaining in the current item API rate limit window",
	}, []string{"scope"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedlist_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the budget was exhausted",
	}, []string{"scope"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedlist_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the budget was low",
	}, []string{"scope"})
)

// Tracker records the request budget reported by an item API in Redis and
// gates requests on it.
type Tracker struct {
	redis      *redis.Client
	scope      string
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewTracker creates a tracker. scope separates budgets of different APIs
// or credentials sharing one Redis.
func NewTracker(redisClient *redis.Client, scope string, logger zerolog.Logger) *Tracker {
	if scope == "" {
		scope = "default"
	}
	return &Tracker{
		redis:      redisClient,
		scope:      scope,
		thresholds: DefaultThresholds(),
		logger:     logger.With().Str("rate_limit_scope", scope).Logger(),
	}
}

// WithThresholds replaces the default thresholds.
func (t *Tracker) WithThresholds(th Thresholds) *Tracker {
	t.thresholds = th
	return t
}

// Thresholds returns the thresholds in use.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

func (t *Tracker) key(suffix string) string {
	return "pagedlist:rate_limit:" + t.scope + ":" + suffix
}

// GetState retrieves the current budget from Redis.
// Returns a healthy default state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	vals, err := t.redis.MGet(ctx, t.key(keyRemaining), t.key(keyResetAt), t.key(keyLastUpdate)).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if vals[0] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		state := &RateLimitState{
			Remaining:  t.thresholds.Healthy,
			ResetAt:    time.Now(),
			LastUpdate: time.Now(),
		}
		state.UpdateHealth(t.thresholds)
		return state, nil
	}

	remaining, err := redisInt(vals[0])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	resetAt, err := redisInt(vals[1])
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}
	lastUpdate, err := redisInt(vals[2])
	if err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	}

	state := &RateLimitState{
		Remaining:  int(remaining),
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: time.UnixMilli(lastUpdate),
	}
	state.UpdateHealth(t.thresholds)

	return state, nil
}

// UpdateFromHeaders parses budget headers and stores the state in Redis.
// Responses without the headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	now := time.Now()
	state := &RateLimitState{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth(t.thresholds)

	// Keys outlive the window a little so a restarted process still sees them
	ttl := time.Duration(resetSeconds)*time.Second + time.Minute

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.key(keyRemaining), remain, ttl)
	pipe.Set(ctx, t.key(keyResetAt), state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, t.key(keyLastUpdate), state.LastUpdate.UnixMilli(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	rateLimitRemaining.WithLabelValues(t.scope).Set(float64(remain))

	switch {
	case state.NeedsCriticalBlock(t.thresholds):
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit budget exhausted - requests will be blocked")
	case state.NeedsThrottling(t.thresholds):
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit budget low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// It returns false while the budget is exhausted, and waits ThrottleDelay
// (or until ctx is done) while the budget is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsCriticalBlock(t.thresholds) {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit budget exhausted - blocking request")
		rateLimitBlocksTotal.WithLabelValues(t.scope).Inc()
		return false, nil
	}

	if state.NeedsThrottling(t.thresholds) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.thresholds.ThrottleDelay).
			Msg("Rate limit budget low - throttling request")
		rateLimitThrottlesTotal.WithLabelValues(t.scope).Inc()

		timer := time.NewTimer(t.thresholds.ThrottleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Reset removes the stored state.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.key(keyRemaining), t.key(keyResetAt), t.key(keyLastUpdate)).Err(); err != nil {
		return fmt.Errorf("reset rate limit state: %w", err)
	}
	return nil
}

func redisInt(v interface{}) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	case int64:
		return val, nil
	default:
		return 0, fmt.Errorf("unexpected redis value %T", v)
	}
}
