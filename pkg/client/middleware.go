package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// HeaderRequestID carries the per-call correlation id.
const HeaderRequestID = "X-Request-ID"

// RequestMiddleware transforms an outgoing request before it is sent.
// Middlewares run in order, once per Do call, before pacing and retries.
type RequestMiddleware func(ctx context.Context, req *http.Request) error

// StaticHeaderMiddleware sets fixed headers on every request.
func StaticHeaderMiddleware(headers map[string]string) RequestMiddleware {
	return func(_ context.Context, req *http.Request) error {
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		return nil
	}
}

// BearerTokenMiddleware authorizes requests with a token from ts.
// Wrap ts in oauth2.ReuseTokenSource to avoid fetching a token per request.
func BearerTokenMiddleware(ts oauth2.TokenSource) RequestMiddleware {
	return func(_ context.Context, req *http.Request) error {
		tok, err := ts.Token()
		if err != nil {
			return fmt.Errorf("oauth2 token fetch: %w", err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
}

// RequestIDMiddleware sets a random X-Request-ID unless one is present.
func RequestIDMiddleware() RequestMiddleware {
	return func(_ context.Context, req *http.Request) error {
		if req.Header.Get(HeaderRequestID) == "" {
			req.Header.Set(HeaderRequestID, uuid.NewString())
		}
		return nil
	}
}
