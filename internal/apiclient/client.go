// Package apiclient implements the shared HTTP client against the
// orchestrator: a uniform error model, a time-bounded response cache for
// idempotent GETs with request coalescing, an outbound rate limiter, and a
// circuit breaker that fails fast during orchestrator outages.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Metrics is the subset of internal/observability's recorders the client
// needs. Passing an interface here (rather than importing observability
// directly) keeps apiclient free of a dependency on the metrics registry,
// so it can be unit-tested without touching promauto's global registry.
type Metrics interface {
	ObserveRequest(method string, status int, cached bool)
	ObserveCircuitState(state string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, int, bool) {}
func (noopMetrics) ObserveCircuitState(string)        {}

// Client is the shared HTTP client described in spec.md §4.1. A single
// Client is constructed by the Supervisor at startup and shared read-mostly
// by every ControlLoop (§3 "Ownership summary").
type Client struct {
	httpClient *http.Client
	baseURL    string
	bearer     string

	cache   CacheStore
	group   singleflight.Group
	limiter *rate.Limiter
	breaker *circuitBreaker
	metrics Metrics
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithCacheStore overrides the default in-process CacheStore, e.g. with a
// RedisCacheStore for multi-replica deployments.
func WithCacheStore(store CacheStore) Option {
	return func(c *Client) { c.cache = store }
}

// WithRateLimit bounds outbound request bursts against the orchestrator,
// grounded in the teacher's scheduler.TokenBucketLimiter.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

// WithCircuitBreaker trips after consecutiveFailures in a row and stays open
// for cooldown before probing again.
func WithCircuitBreaker(consecutiveFailures int, cooldown time.Duration) Option {
	return func(c *Client) { c.breaker = newCircuitBreaker(consecutiveFailures, cooldown) }
}

// WithMetrics wires a Metrics recorder, normally internal/observability's
// registry.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient overrides the underlying http.Client (e.g. in tests, to
// point at an httptest.Server with a short timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client against baseURL (the orchestrator's root, e.g.
// https://marathon.example.com), attaching bearerToken to every request if
// non-empty.
func New(baseURL, bearerToken string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		bearer:     bearerToken,
		cache:      NewMemoryCacheStore(),
		breaker:    newCircuitBreaker(5, 30*time.Second),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request issues a single HTTP request to path (relative to baseURL) and
// returns the response body. Non-GET methods always perform a live request;
// GET does too -- callers wanting the cache must use CachedGet. Fails with
// *TransportError on network failure or *HttpError on a non-2xx response.
func (c *Client) Request(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.breaker != nil && !c.breaker.allow() {
		c.metrics.ObserveCircuitState(c.breaker.String())
		return nil, &TransportError{Op: method + " " + path, Err: fmt.Errorf("circuit breaker open")}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: method + " " + path, Err: err}
		}
	}

	respBody, status, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		if c.breaker != nil {
			c.breaker.recordFailure()
		}
		c.metrics.ObserveRequest(method, 0, false)
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	if c.breaker != nil {
		c.breaker.recordSuccess()
	}
	c.metrics.ObserveRequest(method, status, false)

	if status < 200 || status >= 300 {
		return nil, &HttpError{Status: status, Body: string(respBody)}
	}
	return respBody, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	url := c.baseURL + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return respBody, resp.StatusCode, nil
}

// CachedGet returns a cached body for path if present; otherwise it fetches
// via Request("GET", path) and stores the result. Concurrent CachedGet
// calls for the same path are coalesced through singleflight.Group so at
// most one upstream request is in flight at a time (§4.1, P12, P7).
func (c *Client) CachedGet(ctx context.Context, path string) ([]byte, error) {
	if body, ok := c.cache.Get(path); ok {
		c.metrics.ObserveRequest(http.MethodGet, 200, true)
		return body, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		// Re-check the cache: another goroutine may have populated it
		// while this one waited to enter Do.
		if body, ok := c.cache.Get(path); ok {
			return body, nil
		}
		body, err := c.Request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		c.cache.Set(path, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// EvictAll atomically invalidates the cache. After it returns, the next
// CachedGet for any key is guaranteed to hit upstream (§4.1).
func (c *Client) EvictAll() {
	c.cache.EvictAll()
}
