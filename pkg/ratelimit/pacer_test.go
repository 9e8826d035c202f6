package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacer_Burst(t *testing.T) {
	p := NewPacer(1, 3)

	for i := 0; i < 3; i++ {
		if !p.Allow() {
			t.Fatalf("Allow() #%d = false within burst", i+1)
		}
	}
	if p.Allow() {
		t.Error("Allow() = true after burst exhausted")
	}
}

func TestPacer_WaitSpacesRequests(t *testing.T) {
	p := NewPacer(50, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	// 1 immediate + 2 at 20ms spacing
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("3 waits took %v, want >= 30ms", elapsed)
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p := NewPacer(0.1, 1)
	p.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() should fail when the next token is beyond the deadline")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want deadline related error", err)
	}
}

func TestPacer_Disabled(t *testing.T) {
	p := NewPacer(0, 0)
	for i := 0; i < 100; i++ {
		if !p.Allow() {
			t.Fatal("disabled pacer should always allow")
		}
	}

	var nilPacer *Pacer
	if err := nilPacer.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer Wait() error = %v", err)
	}
	if !nilPacer.Allow() {
		t.Error("nil pacer Allow() = false")
	}
}
