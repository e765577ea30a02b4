package jirapo

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WithMaxAttempts sets the total attempt budget per request (first try
// included).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithBackoffBase sets the base delay; attempt n sleeps base*2^n plus
// jitter.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = d
	}
}

// WithMaxBackoff caps the computed backoff delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the exponential growth factor.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor (clamped to [0, 1]).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The caller then owns
// pool sizing and TLS configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetryCondition replaces the default retry decision. Use this to scope
// automatic retry to read methods when writes are not overwrite-idempotent.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithRateLimit adds a client-side token-bucket limit on outgoing attempts,
// a guard against tripping the backend's per-client limits during batch
// runs. rps <= 0 removes the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker enables the circuit breaker. Off by default so exhausted
// retries keep surfacing the last response instead of a breaker error.
func WithBreaker(config BreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewBreaker(config)
	}
}

// WithCache enables in-memory caching of successful GET responses.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a caller-provided cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector (custom registerer).
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithClientLogger sets the logger the client emits through.
func WithClientLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// validateConfiguration runs at construction; New fails fast on nonsense
// values instead of misbehaving on the first request.
func (c *Client) validateConfiguration() error {
	var problems []string

	if c.maxAttempts < 1 {
		problems = append(problems, "maxAttempts must be at least 1")
	}
	if c.maxAttempts > 100 {
		problems = append(problems, "maxAttempts > 100 would retry excessively")
	}
	if c.backoffBase <= 0 {
		problems = append(problems, "backoffBase must be positive")
	}
	if c.maxBackoff < c.backoffBase {
		problems = append(problems, "maxBackoff must be >= backoffBase")
	}
	if c.backoffMultiplier <= 0 {
		problems = append(problems, "backoffMultiplier must be positive")
	}
	if c.retryCondition == nil {
		problems = append(problems, "retryCondition cannot be nil")
	}
	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}
	if c.cache != nil && c.cacheTTL <= 0 {
		problems = append(problems, "cacheTTL must be positive when cache is enabled")
	}

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("%v", problems),
		}
	}
	return nil
}
