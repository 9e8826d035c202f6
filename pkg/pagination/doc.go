// Package pagination holds page window math and parallel batch reading for
// offset/limit item sources.
//
// Pages are 1-based. Page n of size s covers the half-open item window
// [(n-1)*s, n*s):
//
//	offset, limit := pagination.Bounds(3, 20) // 40, 20
//
// The batch fetcher reads a range of pages through a worker pool:
//
//	bf := pagination.NewBatchFetcher(src, pagination.DefaultConfig())
//	pages, err := bf.FetchPages(ctx, 1, 10)
//
// On error it returns the pages that were read so far together with the
// error. ReadAll walks pages one at a time until the source returns a short
// page, for sources that do not report a total.
package pagination
