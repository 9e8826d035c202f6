// Package ratelimit paces outgoing item reads and tracks the request budget
// an item API reports through X-RateLimit-Remaining and X-RateLimit-Reset.
package ratelimit

import (
	"time"
)

// Header names read from item API responses.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Redis key suffixes for budget state storage. Keys are
// "pagedlist:rate_limit:<scope>:<suffix>".
const (
	keyRemaining  = "remaining"
	keyResetAt    = "reset_at"
	keyLastUpdate = "last_update"
)

// Thresholds decide when requests are blocked or slowed down.
type Thresholds struct {
	// Critical blocks requests while remaining is below it.
	Critical int

	// Warning throttles requests while remaining is below it.
	Warning int

	// Healthy marks the budget as healthy at or above it.
	Healthy int

	// ThrottleDelay is the pause applied to each request while throttling.
	ThrottleDelay time.Duration
}

// DefaultThresholds returns thresholds suited to APIs granting ~100 requests per window.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:      1,
		Warning:       10,
		Healthy:       25,
		ThrottleDelay: 500 * time.Millisecond,
	}
}

// RateLimitState is the request budget last reported by the item API.
// It is shared between processes through Redis.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was written.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining is at or above the healthy threshold.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must be blocked until reset.
// A window that has already reset never blocks.
func (s *RateLimitState) NeedsCriticalBlock(th Thresholds) bool {
	return s.Remaining < th.Critical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling(th Thresholds) bool {
	return s.Remaining < th.Warning && !s.NeedsCriticalBlock(th) && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy.
func (s *RateLimitState) UpdateHealth(th Thresholds) {
	s.IsHealthy = s.Remaining >= th.Healthy
}
