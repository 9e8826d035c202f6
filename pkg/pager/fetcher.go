// Package pager provides a paged list fetcher that keeps displayed data
// consistent with the most recently requested page.
//
// Every fetch gets a new generation number. When a read completes, its result
// is applied only if its generation is still the current one; results of
// superseded fetches are discarded, whatever order reads complete in.
package pager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Sternrassler/pagedlist/pkg/logging"
	"github.com/Sternrassler/pagedlist/pkg/pagination"
	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/rs/zerolog"
)

var (
	// ErrCanceled is the failure recorded when an in-flight fetch is cancelled.
	ErrCanceled = errors.New("fetch canceled")

	// ErrClosed is the failure recorded when the fetcher is closed mid-fetch.
	ErrClosed = errors.New("fetcher closed")
)

// closedCh is returned by Done when nothing is in flight.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Config holds fetcher configuration.
type Config struct {
	// PageSize is the number of items per page. Fixed for the fetcher's lifetime.
	PageSize int

	// StartPage is the initial page index (default 1). No fetch is issued
	// until the caller asks for one.
	StartPage int

	// OnChange is called after every state transition with the new state.
	// Calls are serialized and never deliver an older state after a newer one.
	// It must not call back into the fetcher synchronously.
	OnChange func(State)

	// Logger overrides the default component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with the given page size.
func DefaultConfig(pageSize int) Config {
	return Config{
		PageSize:  pageSize,
		StartPage: 1,
	}
}

// Fetcher retrieves one page of items at a time from an item source.
type Fetcher struct {
	src      source.ItemSource
	size     int
	onChange func(State)
	logger   zerolog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	page    int
	gen     uint64
	status  Status
	items   []source.Item
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
	version uint64
	closed  bool

	notifyMu sync.Mutex
	notified uint64
}

// New creates a fetcher reading from src.
func New(src source.ItemSource, cfg Config) (*Fetcher, error) {
	if src == nil {
		return nil, fmt.Errorf("item source is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive (got %d)", cfg.PageSize)
	}

	logger := logging.NewLogger("pager")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Fetcher{
		src:      src,
		size:     cfg.PageSize,
		onChange: cfg.OnChange,
		logger:   logger.With().Int("page_size", cfg.PageSize).Logger(),
		baseCtx:  ctx,
		stop:     stop,
		page:     pagination.ClampPageTo(cfg.StartPage, cfg.PageSize),
		status:   StatusIdle,
	}, nil
}

// SetPage moves to page n and fetches it. Values below 1 are clamped to 1 and
// values above pagination.MaxPage(PageSize) to that page.
// Asking for the current page is a no-op while it is loading or loaded, and a
// retry when it is idle or failed. Returns true if a fetch was started.
func (f *Fetcher) SetPage(n int) bool {
	return f.move(func(int) int { return n })
}

// Next moves to the following page. At the last addressable page it stays put.
func (f *Fetcher) Next() bool {
	return f.move(func(cur int) int {
		if cur == math.MaxInt {
			return cur
		}
		return cur + 1
	})
}

// Prev moves to the preceding page, never below page 1.
func (f *Fetcher) Prev() bool {
	return f.move(func(cur int) int { return cur - 1 })
}

func (f *Fetcher) move(target func(cur int) int) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}

	n := pagination.ClampPageTo(target(f.page), f.size)
	if status := f.status; n == f.page && (status == StatusLoading || status == StatusLoaded) {
		f.mu.Unlock()
		f.logger.Debug().Int("page", n).Str("status", status.String()).Msg("Page unchanged - no fetch")
		return false
	}

	snap := f.startLocked(n)
	f.mu.Unlock()

	f.notify(snap)
	return true
}

// Fetch starts a read of page and makes it the current page, superseding any
// fetch in flight. It returns the generation of the new fetch, or 0 if the
// fetcher is closed.
func (f *Fetcher) Fetch(page int) uint64 {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0
	}
	snap := f.startLocked(pagination.ClampPageTo(page, f.size))
	f.mu.Unlock()

	f.notify(snap)
	return snap.Generation
}

// Retry fetches the current page again.
func (f *Fetcher) Retry() uint64 {
	f.mu.Lock()
	page := f.page
	f.mu.Unlock()
	return f.Fetch(page)
}

// Cancel signals cancellation to the in-flight read and marks the current
// fetch as failed with ErrCanceled. Whatever the read returns afterwards is
// discarded. Returns false if nothing was in flight.
func (f *Fetcher) Cancel() bool {
	f.mu.Lock()
	if f.closed || f.status != StatusLoading {
		f.mu.Unlock()
		return false
	}

	f.releaseLocked()
	f.status = StatusFailed
	f.err = fmt.Errorf("fetch page %d: %w", f.page, ErrCanceled)
	f.version++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	CancellationsTotal.Inc()
	f.logger.Debug().
		Int("page", snap.Page).
		Uint64("generation", snap.Generation).
		Msg("Fetch cancelled")

	f.notify(snap)
	return true
}

// State returns a snapshot of the current page, items and fetch status.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Done returns a channel that is closed when the fetch current at the time of
// the call settles or is superseded.
func (f *Fetcher) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		return closedCh
	}
	return f.done
}

// Wait blocks until no fetch is in flight and returns the resulting state.
func (f *Fetcher) Wait(ctx context.Context) (State, error) {
	for {
		f.mu.Lock()
		if f.status != StatusLoading {
			snap := f.snapshotLocked()
			f.mu.Unlock()
			return snap, nil
		}
		done := f.done
		f.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return f.State(), ctx.Err()
		}
	}
}

// Close cancels any in-flight read. Later operations are no-ops.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true

	var snap State
	changed := false
	if f.status == StatusLoading {
		f.releaseLocked()
		f.status = StatusFailed
		f.err = fmt.Errorf("fetch page %d: %w", f.page, ErrClosed)
		f.version++
		snap = f.snapshotLocked()
		changed = true
	}
	f.mu.Unlock()

	f.stop()
	if changed {
		f.notify(snap)
	}
	return nil
}

// startLocked begins a new generation for page. f.mu must be held.
func (f *Fetcher) startLocked(page int) State {
	f.releaseLocked()

	f.gen++
	gen := f.gen
	f.page = page
	f.status = StatusLoading
	f.items = nil
	f.err = nil
	f.version++

	ctx, cancel := context.WithCancel(f.baseCtx)
	f.cancel = cancel
	f.done = make(chan struct{})

	offset, limit := pagination.Bounds(page, f.size)

	f.logger.Debug().
		Int("page", page).
		Uint64("generation", gen).
		Int("offset", offset).
		Int("limit", limit).
		Msg("Fetch started")

	go f.run(ctx, gen, page, offset, limit)

	return f.snapshotLocked()
}

// releaseLocked cancels the in-flight read context and wakes Done waiters.
func (f *Fetcher) releaseLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
}

func (f *Fetcher) run(ctx context.Context, gen uint64, page, offset, limit int) {
	start := time.Now()
	items, err := f.read(ctx, offset, limit)
	f.complete(gen, page, limit, items, err, time.Since(start))
}

// read calls the item source, turning a panic into an error.
func (f *Fetcher) read(ctx context.Context, offset, limit int) (items []source.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("item source panicked: %v", r)
		}
	}()
	return f.src.Read(ctx, offset, limit)
}

func (f *Fetcher) complete(gen uint64, page, limit int, items []source.Item, err error, elapsed time.Duration) {
	f.mu.Lock()
	if gen != f.gen || f.status != StatusLoading {
		current := f.gen
		f.mu.Unlock()

		StaleResponsesTotal.Inc()
		f.logger.Debug().
			Int("page", page).
			Uint64("generation", gen).
			Uint64("current_generation", current).
			Msg("Discarding stale response")
		return
	}

	f.releaseLocked()
	if err != nil {
		f.status = StatusFailed
		f.items = nil
		f.err = fmt.Errorf("fetch page %d: %w", page, err)
	} else {
		if len(items) > limit {
			f.logger.Warn().
				Int("page", page).
				Int("items", len(items)).
				Int("limit", limit).
				Msg("Item source returned more items than requested - truncating")
			items = items[:limit]
		}
		if items == nil {
			items = []source.Item{}
		}
		f.status = StatusLoaded
		f.items = items
		f.err = nil
	}
	f.version++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	FetchDuration.Observe(elapsed.Seconds())
	if snap.Err != nil {
		FetchesTotal.WithLabelValues("failed").Inc()
		f.logger.Warn().
			Err(snap.Err).
			Int("page", page).
			Uint64("generation", gen).
			Str("error_kind", string(source.KindOf(err))).
			Dur("duration", elapsed).
			Msg("Fetch failed")
	} else {
		FetchesTotal.WithLabelValues("loaded").Inc()
		f.logger.Debug().
			Int("page", page).
			Uint64("generation", gen).
			Int("items", len(snap.Items)).
			Dur("duration", elapsed).
			Msg("Fetch loaded")
	}

	f.notify(snap)
}

func (f *Fetcher) snapshotLocked() State {
	var items []source.Item
	if f.items != nil {
		items = make([]source.Item, len(f.items))
		copy(items, f.items)
	}
	return State{
		Page:       f.page,
		PageSize:   f.size,
		Items:      items,
		Status:     f.status,
		Err:        f.err,
		Generation: f.gen,
		version:    f.version,
	}
}

// notify delivers snap to OnChange unless a newer state was already delivered.
func (f *Fetcher) notify(snap State) {
	if f.onChange == nil {
		return
	}
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	if snap.version <= f.notified {
		return
	}
	f.notified = snap.version
	f.onChange(snap)
}
