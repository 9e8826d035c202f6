package pager

import (
	"github.com/Sternrassler/pagedlist/pkg/source"
)

// Status is the fetch state of the current page.
type Status int

const (
	// StatusIdle means no fetch has been started yet.
	StatusIdle Status = iota

	// StatusLoading means a read for the current page is in flight.
	StatusLoading

	// StatusLoaded means the items of the current page are available.
	StatusLoaded

	// StatusFailed means the last read for the current page failed.
	StatusFailed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of a fetcher.
type State struct {
	// Page is the current 1-based page index.
	Page int

	// PageSize is the fixed number of items per page.
	PageSize int

	// Items holds the page items when Status is StatusLoaded.
	Items []source.Item

	// Status is the fetch state of Page.
	Status Status

	// Err is set when Status is StatusFailed.
	Err error

	// Generation identifies the fetch that produced this state.
	Generation uint64

	version uint64
}

// Message returns a human-readable description of the failure, or "".
func (s State) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Loading reports whether a read is in flight.
func (s State) Loading() bool {
	return s.Status == StatusLoading
}
