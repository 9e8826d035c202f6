// Package testutil provides testing utilities for pagedlist.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// ItemsPath is the path the mock server serves items on.
const ItemsPath = "/items"

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockItemServer is a configurable offset/limit item API for testing.
type MockItemServer struct {
	server *httptest.Server

	mu        sync.RWMutex
	total     int
	envelope  string
	etags     bool
	failures  []MockResponse
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	remaining int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	LastQuery         map[string]string
}

// NewMockItemServer creates a mock server holding total items with ids 1..total.
func NewMockItemServer(total int) *MockItemServer {
	mock := &MockItemServer{
		total:     total,
		etags:     true,
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		remaining: 100,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = make(map[string]string)
		for key := range r.URL.Query() {
			mock.LastQuery[key] = r.URL.Query().Get(key)
		}
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}

		// Queued failures take precedence over everything else
		var failure *MockResponse
		if len(mock.failures) > 0 {
			f := mock.failures[0]
			mock.failures = mock.failures[1:]
			failure = &f
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path == ItemsPath {
			mock.itemsHandler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockItemServer) URL() string {
	return m.server.URL
}

// Client returns an HTTP client configured for the mock server.
func (m *MockItemServer) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockItemServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockItemServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetEnvelope wraps item lists in an object under key ("" for a bare array).
func (m *MockItemServer) SetEnvelope(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envelope = key
}

// SetETags toggles ETag headers and 304 handling.
func (m *MockItemServer) SetETags(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = enabled
}

// SetRateLimitRemaining sets the X-RateLimit-Remaining value sent with item responses.
func (m *MockItemServer) SetRateLimitRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

// FailNext queues responses that are served, in order, before normal handling resumes.
func (m *MockItemServer) FailNext(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, responses...)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockItemServer) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockItemServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockItemServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockItemServer) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastHeader returns a header value from the most recent request.
func (m *MockItemServer) GetLastHeader(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LastRequestHeader == nil {
		return ""
	}
	return m.LastRequestHeader.Get(key)
}

// GetLastQuery returns a query parameter from the most recent request.
func (m *MockItemServer) GetLastQuery(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery[key]
}

// itemsHandler serves the window selected by offset/limit (or _start/_limit).
func (m *MockItemServer) itemsHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	total, envelope, etags, remaining := m.total, m.envelope, m.etags, m.remaining
	m.mu.RUnlock()

	q := r.URL.Query()
	offset, err := intParam(q.Get("offset"), q.Get("_start"), 0)
	if err != nil || offset < 0 {
		http.Error(w, `{"error": "invalid offset"}`, http.StatusBadRequest)
		return
	}
	limit, err := intParam(q.Get("limit"), q.Get("_limit"), 10)
	if err != nil || limit <= 0 {
		http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=300")

	etag := fmt.Sprintf(`"items-%d-%d-%d"`, total, offset, limit)
	if etags {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	items := make([]map[string]any, 0, limit)
	for i := offset + 1; i <= total && i <= offset+limit; i++ {
		items = append(items, map[string]any{"id": i, "title": fmt.Sprintf("item %d", i)})
	}

	var payload any = items
	if envelope != "" {
		payload = map[string]any{envelope: items, "total": total}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func intParam(primary, fallback string, def int) (int, error) {
	switch {
	case primary != "":
		return strconv.Atoi(primary)
	case fallback != "":
		return strconv.Atoi(fallback)
	default:
		return def, nil
	}
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewMalformedResponse creates a 200 response whose body is not valid JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"items": [`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
