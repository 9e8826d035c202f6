// Package client provides an HTTP item source for offset/limit list APIs,
// with request middlewares, rate limiting, caching, and retries.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pagedlist/pkg/cache"
	"github.com/Sternrassler/pagedlist/pkg/logging"
	"github.com/Sternrassler/pagedlist/pkg/ratelimit"
	"github.com/Sternrassler/pagedlist/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedlist_http_requests_total",
		Help: "Total item API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagedlist_http_request_duration_seconds",
		Help:    "Item API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagedlist_http_errors_total",
		Help: "Total item API errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response ends up in a message.
const maxErrorBody = 512

// Client reads item pages over HTTP. It implements source.ItemSource.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	pacer       *ratelimit.Pacer
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	scope       string
	middlewares []RequestMiddleware
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

var _ source.ItemSource = (*Client)(nil)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the item API, e.g. "https://api.example.com"
	BaseURL string

	// Endpoint path of the list, e.g. "/items"
	Endpoint string

	// Query parameter names for the page window
	OffsetParam string
	LimitParam  string

	// ItemsField is the envelope key holding the item array ("" for a bare array)
	ItemsField string

	// User-Agent header
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Local pacing: requests per second (0 disables) and burst
	RateLimit float64
	Burst     int

	// Redis client for the page cache and the shared rate-limit budget (optional)
	Redis *redis.Client

	// Scope separates cache entries and rate-limit budgets, e.g. per credential.
	// Defaults to the host of BaseURL.
	// The rate-limit budget falls back to the API host.
	Scope string

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// TokenSource authorizes requests with a bearer token (optional)
	TokenSource oauth2.TokenSource

	// Middlewares run on every request after the built-in ones
	Middlewares []RequestMiddleware

	// Logger overrides the default component logger
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, endpoint, userAgent string) Config {
	retry := DefaultRetryConfig()
	return Config{
		BaseURL:        baseURL,
		Endpoint:       endpoint,
		OffsetParam:    "offset",
		LimitParam:     "limit",
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		RateLimit:      10,
		Burst:          5,
		MaxRetries:     retry.MaxRetries,
		InitialBackoff: retry.InitialBackoff,
		MaxBackoff:     retry.MaxBackoff,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.OffsetParam == "" || cfg.LimitParam == "" {
		return nil, fmt.Errorf("offset and limit parameter names are required")
	}
	if cfg.OffsetParam == cfg.LimitParam {
		return nil, fmt.Errorf("offset and limit parameters must differ (both %q)", cfg.OffsetParam)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.InitialBackoff <= 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return nil, fmt.Errorf("backoff must satisfy 0 < initial <= max (got %v, %v)", cfg.InitialBackoff, cfg.MaxBackoff)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("http-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	middlewares := []RequestMiddleware{
		StaticHeaderMiddleware(map[string]string{
			"User-Agent": cfg.UserAgent,
			"Accept":     "application/json",
		}),
		RequestIDMiddleware(),
	}
	if cfg.TokenSource != nil {
		middlewares = append(middlewares, BearerTokenMiddleware(oauth2.ReuseTokenSource(nil, cfg.TokenSource)))
	}
	middlewares = append(middlewares, cfg.Middlewares...)

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		pacer:       ratelimit.NewPacer(cfg.RateLimit, cfg.Burst),
		middlewares: middlewares,
		retry: RetryConfig{
			MaxRetries:        cfg.MaxRetries,
			InitialBackoff:    cfg.InitialBackoff,
			MaxBackoff:        cfg.MaxBackoff,
			BackoffMultiplier: 2.0,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.scope = cfg.Scope
		if c.scope == "" {
			c.scope = base.Host
		}
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, c.scope, logger)
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Read fetches limit items starting at offset. Failures are reported as
// source.ReadError: transport (no response), status (non-2xx) or decode.
func (c *Client) Read(ctx context.Context, offset, limit int) ([]source.Item, error) {
	req, err := c.newRequest(ctx, offset, limit)
	if err != nil {
		return nil, source.TransportError(err)
	}

	resp, err := c.Do(req)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
			return nil, source.StatusError(httpErr.StatusCode, httpErr.Message)
		}
		return nil, source.TransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, source.StatusError(resp.StatusCode, errorMessage(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.TransportError(fmt.Errorf("read response body: %w", err))
	}

	items, err := c.decode(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("offset", offset).
		Int("limit", limit).
		Int("items", len(items)).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Msg("Page read")

	return items, nil
}

// newRequest builds GET {base}{endpoint}?{offset}=..&{limit}=..
func (c *Client) newRequest(ctx context.Context, offset, limit int) (*http.Request, error) {
	u := c.baseURL.JoinPath(c.config.Endpoint)
	q := u.Query()
	q.Set(c.config.OffsetParam, strconv.Itoa(offset))
	q.Set(c.config.LimitParam, strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// decode parses a bare item array or the configured envelope field.
func (c *Client) decode(body []byte) ([]source.Item, error) {
	raw := json.RawMessage(body)

	if field := c.config.ItemsField; field != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, source.DecodeError("response is not a JSON object", err)
		}
		inner, ok := envelope[field]
		if !ok {
			return nil, source.DecodeError(fmt.Sprintf("missing field %q", field), nil)
		}
		raw = inner
	}

	var items []source.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, source.DecodeError("invalid item list", err)
	}
	if items == nil {
		items = []source.Item{}
	}
	return items, nil
}

// Do performs an HTTP request with middlewares, rate limiting, caching, and retries.
// Responses with a non-retryable status are returned as-is; retryable failures
// that outlast the retry budget are returned as errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	for _, mw := range c.middlewares {
		if err := mw(ctx, req); err != nil {
			return nil, fmt.Errorf("request middleware: %w", err)
		}
	}

	logger := c.logger.With().
		Str("endpoint", endpoint).
		Str("request_id", req.Header.Get(HeaderRequestID)).
		Logger()

	// Cache lookup
	var (
		cacheKey    cache.CacheKey
		cachedEntry *cache.CacheEntry
	)
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.CacheKey{
			Endpoint:    endpoint,
			QueryParams: req.URL.Query(),
			Scope:       c.scope,
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		if entry != nil && entry.IsFresh() {
			cache.CacheHits.WithLabelValues("fresh").Inc()
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			logger.Debug().Dur("ttl", entry.TTL()).Msg("Serving fresh cache entry")
			return cache.EntryToResponse(entry, req), nil
		}
		if entry != nil && cache.ShouldMakeConditionalRequest(entry) {
			cachedEntry = entry
			cache.AddConditionalHeaders(req, entry)
			cache.ConditionalRequestsSent.Inc()
			logger.Debug().Str("etag", entry.ETag).Msg("Making conditional request")
		}
	}

	// Rate limiting
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacer wait: %w", err)
	}
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("rate limit check: %w", err)
			}
			// A broken budget store must not take reads down with it
			logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			logger.Warn().Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	logger.Debug().Str("method", req.Method).Msg("Executing request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, logger, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)

		if reqErr != nil {
			errClass := classifyError(nil, reqErr)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			logger.Warn().Err(reqErr).Msg("HTTP request failed")
			return errClass, &HTTPError{ErrorClass: errClass, Message: "request failed", Err: reqErr}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
				logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		errClass := classifyError(resp, nil)
		if errClass == "" {
			return "", nil
		}

		errorsTotal.WithLabelValues(string(errClass)).Inc()
		logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request error")

		if !shouldRetry(errClass) {
			// Let the caller handle the status
			return errClass, nil
		}

		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp),
		}
		resp.Body.Close()
		resp = nil
		return errClass, httpErr
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		cache.NotModifiedResponses.Inc()
		cache.CacheHits.WithLabelValues("revalidated").Inc()
		logger.Debug().Msg("304 Not Modified - using cache")

		cache.Refresh(cachedEntry, resp)
		if err := c.cache.Set(ctx, cacheKey, cachedEntry); err != nil {
			logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if c.cache != nil && req.Method == http.MethodGet && resp.StatusCode == http.StatusOK {
		c.store(ctx, logger, cacheKey, resp)
	}

	return resp, nil
}

func (c *Client) store(ctx context.Context, logger zerolog.Logger, key cache.CacheKey, resp *http.Response) {
	entry, err := cache.ResponseToEntry(resp)
	if errors.Is(err, cache.ErrNotCacheable) {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create cache entry")
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
}

// errorMessage returns a short description of a failed response. It consumes the body.
func errorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// Get performs a GET request to a path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	u := c.baseURL.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Close releases idle connections. The Redis client belongs to the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// GetRateLimiter returns the shared budget tracker, nil without Redis.
func (c *Client) GetRateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
