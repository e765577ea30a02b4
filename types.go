package jirapo

import (
	"encoding/json"
	"net/http"
	"time"
)

// TrustMode selects how TLS certificates are verified when talking to the
// Jira backend. Disabling verification is not representable: an explicit
// "off" in configuration is rejected by the Resolver.
type TrustMode int

const (
	// TrustStandard verifies certificates against the system trust store.
	TrustStandard TrustMode = iota
	// TrustCustomBundle verifies against the system store plus a custom
	// CA bundle (ConnectionSettings.CABundle).
	TrustCustomBundle
)

func (m TrustMode) String() string {
	switch m {
	case TrustStandard:
		return "standard"
	case TrustCustomBundle:
		return "custom-bundle"
	default:
		return "unknown"
	}
}

// ConnectionSettings holds everything needed to reach one Jira backend.
// Resolved once per process and read-only afterwards; safe to share.
type ConnectionSettings struct {
	BaseURL  string
	Username string
	Secret   string
	Trust    TrustMode
	// CABundle is the verified bundle path when Trust is TrustCustomBundle.
	CABundle string
}

// RetryCondition decides whether a finished attempt should be retried.
type RetryCondition func(resp *http.Response, err error) bool

// Option configures a Client.
type Option func(*Client)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// Logger is the minimal structured logging surface the access layer emits
// through. Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// BatchResult maps each requested id to its decoded payload. A nil value is
// the absent-marker: the fetch for that id failed after retries. Every id
// handed to FetchBatch is present in the map.
type BatchResult map[string]json.RawMessage

// Failed returns the ids whose fetch failed (absent-marker entries).
func (r BatchResult) Failed() []string {
	var failed []string
	for id, payload := range r {
		if payload == nil {
			failed = append(failed, id)
		}
	}
	return failed
}

// CacheEntry is a stored GET response.
type CacheEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ExpiresAt  time.Time
}

// Cache stores GET responses for reuse within a process run.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}
