package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// PageSize is the number of items per page
	PageSize int
	// MaxConcurrency is the maximum number of parallel reads
	MaxConcurrency int
	// Timeout per page read
	Timeout time.Duration
	// MaxPages bounds ReadAll for sources that never return a short page, and
	// the length of a FetchPages range
	MaxPages int
}

// DefaultConfig returns the default batch configuration
func DefaultConfig() Config {
	return Config{
		PageSize:       20,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       1000,
	}
}

// PageResult is the outcome of reading a single page
type PageResult struct {
	PageNumber int
	Items      []source.Item
	Error      error
}

// BatchFetcher reads ranges of pages from an item source
type BatchFetcher struct {
	src    source.ItemSource
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(src source.ItemSource, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		src:    src,
		config: config,
		logger: log.With().Str("component", "batch-fetcher").Logger(),
	}
}

// FetchPages reads pages from..to (inclusive) in parallel.
// Returns a map of page number to items. On failure the pages read so far are
// returned together with the first error.
func (bf *BatchFetcher) FetchPages(ctx context.Context, from, to int) (map[int][]source.Item, error) {
	from = ClampPage(from)
	if to < from {
		return nil, fmt.Errorf("invalid page range %d..%d", from, to)
	}
	if last := MaxPage(bf.config.PageSize); to > last {
		return nil, fmt.Errorf("page %d is past the last addressable page %d", to, last)
	}
	if to-from >= bf.config.MaxPages {
		return nil, fmt.Errorf("page range %d..%d exceeds %d pages", from, to, bf.config.MaxPages)
	}

	start := time.Now()
	total := to - from + 1

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, total)
	for page := from; page <= to; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := bf.config.MaxConcurrency
	if workers > total {
		workers = total
	}

	pageResults := make(chan PageResult, total)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	results := make(map[int][]source.Item, total)
	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
				// Stop handing out further pages
				cancel()
			}
			continue
		}
		results[result.PageNumber] = result.Items
	}

	if firstErr != nil {
		bf.logger.Warn().
			Err(firstErr).
			Int("fetched_pages", len(results)).
			Int("total_pages", total).
			Msg("Batch fetch failed - returning partial results")
		return results, fmt.Errorf("batch fetch (partial data: %d/%d pages): %w", len(results), total, firstErr)
	}

	bf.logger.Info().
		Int("from", from).
		Int("to", to).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		items, err := bf.readPage(ctx, pageNum)
		results <- PageResult{PageNumber: pageNum, Items: items, Error: err}
		if err != nil {
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

func (bf *BatchFetcher) readPage(ctx context.Context, page int) ([]source.Item, error) {
	pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	defer cancel()

	offset, limit := Bounds(page, bf.config.PageSize)
	items, err := bf.src.Read(pageCtx, offset, limit)
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ReadAll reads pages in order until a page shorter than the page size is
// returned, and concatenates their items.
func (bf *BatchFetcher) ReadAll(ctx context.Context) ([]source.Item, error) {
	var all []source.Item
	for page := 1; page <= bf.config.MaxPages; page++ {
		items, err := bf.readPage(ctx, page)
		if err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)

		if len(items) < bf.config.PageSize {
			bf.logger.Debug().
				Int("pages", page).
				Int("items", len(all)).
				Msg("Read all pages")
			return all, nil
		}
	}

	return all, fmt.Errorf("stopped after %d pages without reaching the end of the list", bf.config.MaxPages)
}
