package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the freshness used when the response carries none
	DefaultTTL = 5 * time.Minute
)

// ErrNotCacheable is returned for responses that forbid storage.
var ErrNotCacheable = errors.New("response is not cacheable")

// ResponseToEntry converts a response to a cache entry.
// The body is read and restored so the caller can still consume it.
func ResponseToEntry(resp *http.Response) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if cc := resp.Header.Get("Cache-Control"); hasDirective(cc, "no-store") {
		return nil, ErrNotCacheable
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
		Expires:    freshUntil(resp.Header),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// EntryToResponse rebuilds a response from a cache entry.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Cache", "HIT")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// Refresh applies the freshness headers of a 304 Not Modified response to entry.
func Refresh(entry *CacheEntry, notModified *http.Response) {
	entry.Expires = freshUntil(notModified.Header)
	entry.CachedAt = time.Now()
	if etag := notModified.Header.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
}

// freshUntil derives the expiry time from Cache-Control max-age, then Expires,
// then DefaultTTL.
func freshUntil(headers http.Header) time.Time {
	now := time.Now()

	cc := headers.Get("Cache-Control")
	if hasDirective(cc, "no-cache") {
		return now
	}
	if maxAge, ok := directiveSeconds(cc, "max-age"); ok {
		return now.Add(time.Duration(maxAge) * time.Second)
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		expires, err := http.ParseTime(expiresStr)
		if err != nil {
			return now.Add(DefaultTTL)
		}
		if expires.Before(now) {
			return now
		}
		return expires
	}

	return now.Add(DefaultTTL)
}

func hasDirective(cacheControl, name string) bool {
	for _, part := range strings.Split(cacheControl, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return true
		}
	}
	return false
}

// maxDeltaSeconds caps delta-seconds values, about 68 years.
const maxDeltaSeconds = math.MaxInt32

func directiveSeconds(cacheControl, name string) (int, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || !strings.EqualFold(key, name) {
			continue
		}
		n, err := strconv.ParseUint(strings.Trim(value, `"`), 10, 64)
		if errors.Is(err, strconv.ErrRange) || (err == nil && n > maxDeltaSeconds) {
			return maxDeltaSeconds, true
		}
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// ShouldMakeConditionalRequest reports whether a conditional request can be
// sent for entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.Revalidatable()
}

// AddConditionalHeaders adds If-None-Match (preferred) or If-Modified-Since.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
