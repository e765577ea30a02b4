package jirapo

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Error type labels carried by ClientError.
const (
	ErrorTypeNetwork     = "Network"
	ErrorTypeTimeout     = "Timeout"
	ErrorTypeCircuitOpen = "CircuitOpen"
	ErrorTypeRateLimit   = "RateLimit"
	ErrorTypeValidation  = "Validation"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("jirapo: circuit open")

// ConfigError reports an invalid or rejected configuration value. It is
// fatal: the Resolver never silently downgrades a rejected trust setting.
type ConfigError struct {
	Key     string
	Value   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf(
		"jirapo: invalid %s=%q: %s (supported: a boolean-true token for standard verification, a CA bundle path, or leave unset)",
		e.Key, e.Value, e.Message)
}

// ClientError is a failure produced by the client itself rather than by the
// backend: transport errors after retry exhaustion, an open circuit, or a
// configuration that failed validation.
type ClientError struct {
	Type     string
	Message  string
	Cause    error
	Method   string
	URL      string
	Attempts int
	Duration time.Duration
}

func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("jirapo: %s: %s", e.Type, e.Message)
	if e.Method != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Method, e.URL)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempt(s)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches ClientErrors by Type, and CircuitOpen errors against
// ErrCircuitOpen.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrCircuitOpen {
		return e.Type == ErrorTypeCircuitOpen
	}
	if other, ok := target.(*ClientError); ok {
		return e.Type == other.Type
	}
	return false
}

// APIError is an HTTP error status interpreted by the caller. The client
// returns non-2xx responses as-is; ErrorFromResponse is the explicit
// raise-for-status step.
type APIError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("jirapo: %s %s returned %s: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("jirapo: %s %s returned %s", e.Method, e.URL, e.Status)
}

const maxErrorBodyBytes = 2048

// ErrorFromResponse returns an *APIError when the response status is 400 or
// above, consuming and closing the body. For successful responses it returns
// nil and leaves the body untouched.
func ErrorFromResponse(resp *http.Response) error {
	if resp == nil || resp.StatusCode < 400 {
		return nil
	}
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.URL = resp.Request.URL.String()
	}
	if resp.Body != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()
		apiErr.Body = string(snippet)
	}
	return apiErr
}

// IsTransient reports whether an error represents a failure that might
// succeed on retry: transport errors, timeouts, 5xx responses and 429.
// Configuration errors and other 4xx responses are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeCircuitOpen, ErrorTypeRateLimit:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
