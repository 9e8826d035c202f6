package pagination

import "math"

// ClampPage returns page, or 1 if page is below 1.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// MaxPage returns the highest page whose offset fits in an int.
func MaxPage(size int) int {
	if size <= 0 {
		return 1
	}
	last := math.MaxInt / size
	if last == math.MaxInt {
		return last
	}
	return last + 1
}

// ClampPageTo clamps page to [1, MaxPage(size)].
func ClampPageTo(page, size int) int {
	if max := MaxPage(size); page > max {
		return max
	}
	return ClampPage(page)
}

// Bounds returns the offset and limit of a page. The page is clamped to
// [1, MaxPage(size)] so the offset never overflows or goes negative.
func Bounds(page, size int) (offset, limit int) {
	page = ClampPageTo(page, size)
	return (page - 1) * size, size
}

// PageOf returns the 1-based page that contains the item at offset.
func PageOf(offset, size int) int {
	if offset < 0 || size <= 0 {
		return 1
	}
	return offset/size + 1
}
