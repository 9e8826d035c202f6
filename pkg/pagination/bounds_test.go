package pagination

import (
	"math"
	"testing"
)

func TestBounds(t *testing.T) {
	tests := []struct {
		name       string
		page, size int
		wantOffset int
		wantLimit  int
	}{
		{"first page", 1, 5, 0, 5},
		{"second page", 2, 5, 5, 5},
		{"large page", 10, 25, 225, 25},
		{"zero clamps", 0, 5, 0, 5},
		{"negative clamps", -3, 5, 0, 5},
		{"max page", math.MaxInt/5 + 1, 5, math.MaxInt / 5 * 5, 5},
		{"past max page clamps", math.MaxInt/5 + 2, 5, math.MaxInt / 5 * 5, 5},
		{"max int page clamps", math.MaxInt, 5, math.MaxInt / 5 * 5, 5},
		{"max int page size one", math.MaxInt, 1, math.MaxInt - 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := Bounds(tt.page, tt.size)
			if offset != tt.wantOffset || limit != tt.wantLimit {
				t.Errorf("Bounds(%d, %d) = (%d, %d), want (%d, %d)",
					tt.page, tt.size, offset, limit, tt.wantOffset, tt.wantLimit)
			}
		})
	}
}

func TestMaxPage(t *testing.T) {
	tests := []struct {
		size, want int
	}{
		{1, math.MaxInt},
		{2, math.MaxInt/2 + 1},
		{5, math.MaxInt/5 + 1},
		{0, 1},
	}

	for _, tt := range tests {
		if got := MaxPage(tt.size); got != tt.want {
			t.Errorf("MaxPage(%d) = %d, want %d", tt.size, got, tt.want)
		}
		if tt.size > 0 {
			if offset, _ := Bounds(MaxPage(tt.size), tt.size); offset < 0 {
				t.Errorf("Bounds(MaxPage(%d)) offset = %d, want >= 0", tt.size, offset)
			}
		}
	}
}

func TestPageOf(t *testing.T) {
	tests := []struct {
		offset, size, want int
	}{
		{0, 5, 1},
		{4, 5, 1},
		{5, 5, 2},
		{49, 10, 5},
		{-1, 10, 1},
		{3, 0, 1},
	}

	for _, tt := range tests {
		if got := PageOf(tt.offset, tt.size); got != tt.want {
			t.Errorf("PageOf(%d, %d) = %d, want %d", tt.offset, tt.size, got, tt.want)
		}
	}
}
