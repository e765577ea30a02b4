package jirapo

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/basjes1977/jira-po-toolkit/internal/backoff"
)

// Connection pool bounds: one backend per process, many concurrent batch
// workers. 10 idle pools of 20 connections each keeps socket growth bounded
// under heavy batch use.
const (
	maxIdleConns        = 200
	maxIdleConnsPerHost = 20

	defaultTimeout     = 15 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// retryableStatus is the fixed set of response codes treated as transient.
var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
	http.StatusTooManyRequests:     true, // 429
}

// DefaultRetryCondition retries transport errors and responses whose status
// is in the retryable set (5xx gateway/server failures and 429).
func DefaultRetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && retryableStatus[resp.StatusCode]
}

// Client is the shared resilient HTTP client for one Jira backend. It owns
// a bounded connection pool and retries transient failures with exponential
// backoff. Create it once per process and share it; it is safe for
// concurrent use and never mutated after construction.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	secret     string

	maxAttempts       int
	backoffBase       time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	retryCondition    RetryCondition

	limiter  *rate.Limiter
	breaker  *Breaker
	cache    Cache
	cacheTTL time.Duration
	metrics  *MetricsCollector
	logger   Logger
}

// New constructs a Client from resolved connection settings. The settings
// are treated as read-only; configuration problems surface here rather than
// on first request.
func New(settings *ConnectionSettings, options ...Option) (*Client, error) {
	if settings == nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "connection settings are required"}
	}
	if settings.BaseURL == "" {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "base URL is required"}
	}
	if _, err := url.Parse(settings.BaseURL); err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "invalid base URL", Cause: err}
	}

	tlsConfig, err := tlsConfigFor(settings)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: defaultDialTimeout,
		}).DialContext,
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		baseURL:           strings.TrimRight(settings.BaseURL, "/"),
		username:          settings.Username,
		secret:            settings.Secret,
		maxAttempts:       3,
		backoffBase:       time.Second,
		maxBackoff:        30 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		retryCondition:    DefaultRetryCondition,
		cacheTTL:          5 * time.Minute,
	}

	for _, option := range options {
		option(c)
	}

	if err := c.validateConfiguration(); err != nil {
		return nil, err
	}

	return c, nil
}

func tlsConfigFor(settings *ConnectionSettings) (*tls.Config, error) {
	if settings.Trust != TrustCustomBundle {
		return nil, nil
	}
	pem, err := os.ReadFile(settings.CABundle)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "cannot read CA bundle", Cause: err}
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("no certificates found in CA bundle %s", settings.CABundle),
		}
	}
	return &tls.Config{RootCAs: pool}, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body interface{}) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, path, query, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, query url.Values, body interface{}) (*http.Response, error) {
	return c.Request(ctx, http.MethodPut, path, query, body)
}

// Patch issues a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, query url.Values, body interface{}) (*http.Response, error) {
	return c.Request(ctx, http.MethodPatch, path, query, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	return c.Request(ctx, http.MethodDelete, path, query, nil)
}

// Request executes one logical request against the backend, retrying
// transient failures (retryable statuses and transport errors) up to the
// configured attempt budget with exponential backoff, honoring Retry-After
// when the server provides one. The retry decision is made once per request
// and applies uniformly to every method, POST and PUT included; callers
// whose writes are not overwrite-idempotent should scope retries to reads
// via WithRetryCondition.
//
// HTTP error statuses are returned as normal responses: after exhaustion
// the LAST response received is handed back with a nil error, and only
// transport-level failures produce a non-nil error. Interpretation is the
// caller's job (see ErrorFromResponse).
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Response, error) {
	target, err := c.resolveURL(path, query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrorTypeValidation, Message: "cannot encode request body", Cause: err, Method: method, URL: target}
		}
	}

	endpoint := endpointLabel(target)
	start := time.Now()
	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	cacheable := c.cache != nil && method == http.MethodGet
	if cacheable {
		if entry, ok := c.cache.Get(target); ok {
			c.metrics.RecordCacheHit(method, endpoint)
			return responseFromCache(entry), nil
		}
		c.metrics.RecordCacheMiss(method, endpoint)
	}

	var resp *http.Response
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		attempts++

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &ClientError{Type: ErrorTypeRateLimit, Message: "rate limiter wait aborted", Cause: err, Method: method, URL: target, Attempts: attempts}
			}
		}

		if c.breaker != nil && !c.breaker.Allow() {
			if c.logger != nil {
				c.logger.Warn("circuit breaker open, rejecting request", "method", method, "endpoint", endpoint)
			}
			return nil, &ClientError{Type: ErrorTypeCircuitOpen, Message: "circuit breaker is open", Method: method, URL: target, Attempts: attempts}
		}

		if attempt > 0 {
			c.metrics.RecordRetry(method, endpoint, attempt)
			if c.logger != nil {
				c.logger.Debug("retrying request", "method", method, "endpoint", endpoint, "attempt", attempt)
			}
		}

		req, err := c.newRequest(ctx, method, target, payload)
		if err != nil {
			return nil, err
		}

		resp, lastErr = c.httpClient.Do(req)

		if c.breaker != nil {
			if lastErr != nil || (resp != nil && resp.StatusCode >= 500) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
			c.metrics.RecordBreakerState(c.breaker.State())
		}

		if attempt == c.maxAttempts-1 || !c.retryCondition(resp, lastErr) {
			break
		}

		delay := retryAfterDelay(resp)
		if delay == 0 {
			delay = backoff.Delay(attempt, c.backoffBase, c.maxBackoff, c.backoffMultiplier, c.jitter)
		}
		drainAndClose(resp)

		select {
		case <-ctx.Done():
			return nil, &ClientError{Type: ErrorTypeTimeout, Message: "request canceled during backoff", Cause: ctx.Err(), Method: method, URL: target, Attempts: attempts}
		case <-time.After(delay):
		}
	}

	duration := time.Since(start)
	if lastErr != nil {
		c.metrics.RecordRequest(method, endpoint, 0, duration)
		return nil, &ClientError{
			Type:     classifyTransportError(lastErr),
			Message:  "request failed",
			Cause:    lastErr,
			Method:   method,
			URL:      target,
			Attempts: attempts,
			Duration: duration,
		}
	}

	c.metrics.RecordRequest(method, endpoint, resp.StatusCode, duration)

	if cacheable && resp.StatusCode < 300 {
		if err := c.storeInCache(target, resp); err != nil && c.logger != nil {
			c.logger.Warn("response not cached", "endpoint", endpoint, "error", err)
		}
	}

	return resp, nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) resolveURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	u, err := url.Parse(target)
	if err != nil {
		return "", &ClientError{Type: ErrorTypeValidation, Message: "invalid request path", Cause: err, URL: target}
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "cannot build request", Cause: err, Method: method, URL: target}
	}
	if c.username != "" || c.secret != "" {
		req.SetBasicAuth(c.username, c.secret)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// send performs a single attempt with no client-level retry. The batch
// fetcher uses it so its per-item retry policy does not stack on top of the
// request-level one.
func (c *Client) send(ctx context.Context, method, target string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := c.newRequest(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

func (c *Client) storeInCache(key string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	c.cache.Set(key, &CacheEntry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, c.cacheTTL)
	return nil
}

func responseFromCache(entry *CacheEntry) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		StatusCode:    entry.StatusCode,
		Header:        entry.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
	}
}

// retryAfterDelay parses a Retry-After header (delay-seconds or HTTP-date),
// capped at one hour. Zero means no usable value.
func retryAfterDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// drainAndClose releases the response body so the underlying connection can
// be reused by the next attempt.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func classifyTransportError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

// endpointLabel reduces a URL to host+path for metric and log labels,
// dropping query strings so label cardinality stays bounded.
func endpointLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	if u.Path == "" || u.Path == "/" {
		return u.Host + "/"
	}
	return u.Host + u.Path
}
