package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test if none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func budgetHeaders(remaining, reset string) http.Header {
	h := http.Header{}
	h.Set(HeaderRemaining, remaining)
	h.Set(HeaderReset, reset)
	return h
}

func TestNewTracker_DefaultScope(t *testing.T) {
	tracker := NewTracker(nil, "", zerolog.Nop())
	if tracker.scope != "default" {
		t.Errorf("scope = %q, want default", tracker.scope)
	}
	if got := tracker.key(keyRemaining); got != "pagedlist:rate_limit:default:remaining" {
		t.Errorf("key = %q", got)
	}
}

func TestTracker_UpdateFromHeaders_Invalid(t *testing.T) {
	// Header validation happens before Redis is touched.
	tracker := NewTracker(nil, "test", zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name    string
		headers http.Header
		wantErr bool
	}{
		{"no headers", http.Header{}, false},
		{"bad remaining", budgetHeaders("abc", "60"), true},
		{"missing reset", func() http.Header {
			h := http.Header{}
			h.Set(HeaderRemaining, "10")
			return h
		}(), true},
		{"bad reset", budgetHeaders("10", "soon"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.UpdateFromHeaders(ctx, tt.headers)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpdateFromHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracker_GetState_Default(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, "test", zerolog.Nop())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("default state should be healthy")
	}
	if state.NeedsCriticalBlock(tracker.Thresholds()) {
		t.Error("default state should not block")
	}
}

func TestTracker_UpdateAndGet(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, "test", zerolog.Nop())
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, budgetHeaders("42", "120")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
	if d := state.TimeUntilReset(); d < 115*time.Second || d > 121*time.Second {
		t.Errorf("TimeUntilReset() = %v, want about 120s", d)
	}
	if state.IsStale(time.Minute) {
		t.Error("fresh state reported stale")
	}

	if err := tracker.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	state, _ = tracker.GetState(ctx)
	if state.Remaining != tracker.Thresholds().Healthy {
		t.Errorf("Remaining after reset = %d, want default", state.Remaining)
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, "test", zerolog.Nop())
	th := DefaultThresholds()
	th.ThrottleDelay = 20 * time.Millisecond
	tracker.WithThresholds(th)
	ctx := context.Background()

	tests := []struct {
		name      string
		remaining string
		wantAllow bool
		minDelay  time.Duration
	}{
		{"healthy", "80", true, 0},
		{"throttled", "5", true, 20 * time.Millisecond},
		{"blocked", "0", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tracker.UpdateFromHeaders(ctx, budgetHeaders(tt.remaining, "60")); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			start := time.Now()
			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllow {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllow)
			}
			if elapsed := time.Since(start); elapsed < tt.minDelay {
				t.Errorf("elapsed = %v, want >= %v", elapsed, tt.minDelay)
			}
		})
	}
}

func TestTracker_ScopesAreIsolated(t *testing.T) {
	client := setupTestRedis(t)
	a := NewTracker(client, "a", zerolog.Nop())
	b := NewTracker(client, "b", zerolog.Nop())
	ctx := context.Background()

	if err := a.UpdateFromHeaders(ctx, budgetHeaders("0", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, err := b.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("scope b should not be blocked by scope a")
	}
}
