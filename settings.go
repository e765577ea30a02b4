package jirapo

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Configuration keys read by the Resolver. Process environment values win
// over values from the settings file.
const (
	KeyBaseURL  = "JIRA_URL"
	KeyUsername = "JIRA_EMAIL"
	KeySecret   = "JIRA_API_TOKEN"
	KeyTrust    = "JIRA_SSL_VERIFY"

	// ambientBundleKey is Go's standard ambient CA bundle variable,
	// consulted when no explicit trust setting is present.
	ambientBundleKey = "SSL_CERT_FILE"
)

var (
	falseTokens = map[string]bool{"false": true, "0": true, "no": true, "off": true, "disabled": true}
	trueTokens  = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
)

// Resolver produces ConnectionSettings from layered configuration:
// process environment > settings file > ambient CA bundle > standard trust.
// The first successful Resolve is cached for the life of the Resolver;
// Invalidate drops the cache (test isolation, credential rotation).
type Resolver struct {
	filePath  string
	lookupEnv func(string) (string, bool)
	logger    Logger

	mu     sync.Mutex
	cached *ConnectionSettings
}

// NewResolver creates a Resolver. Without options it reads only the process
// environment and logs warnings through a SimpleLogger.
func NewResolver(options ...ResolverOption) *Resolver {
	r := &Resolver{
		lookupEnv: os.LookupEnv,
		logger:    NewSimpleLogger(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// WithSettingsFile points the Resolver at a persisted env-style settings
// file ("export KEY=value" lines are accepted). A missing file is not an
// error; the layer is simply skipped.
func WithSettingsFile(path string) ResolverOption {
	return func(r *Resolver) {
		r.filePath = path
	}
}

// WithEnvLookup replaces the process environment lookup, primarily for
// tests.
func WithEnvLookup(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// WithResolverLogger sets the logger used for degradation warnings.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolve returns the connection settings for this process. The result is
// cached; call Invalidate to force re-resolution.
//
// Trust resolution: an explicit boolean-false token is rejected with a
// *ConfigError rather than silently downgrading security. A boolean-true
// token means standard verification. Any other non-empty value is treated
// as a CA bundle path; if the path does not exist the Resolver warns and
// falls back to standard trust, the one recoverable degradation.
func (r *Resolver) Resolve() (*ConnectionSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return r.cached, nil
	}

	fileValues := r.readSettingsFile()
	get := func(key string) string {
		if v, ok := r.lookupEnv(key); ok && v != "" {
			return v
		}
		return fileValues[key]
	}

	settings := &ConnectionSettings{
		BaseURL:  strings.TrimRight(get(KeyBaseURL), "/"),
		Username: get(KeyUsername),
		Secret:   get(KeySecret),
		Trust:    TrustStandard,
	}

	raw := get(KeyTrust)
	if raw == "" {
		// No explicit setting: honor the ambient bundle variable.
		raw, _ = r.lookupEnv(ambientBundleKey)
	}

	switch {
	case raw == "":
		settings.Trust = TrustStandard
	case falseTokens[strings.ToLower(raw)]:
		return nil, &ConfigError{
			Key:     KeyTrust,
			Value:   raw,
			Message: "disabling TLS verification is not supported",
		}
	case trueTokens[strings.ToLower(raw)]:
		settings.Trust = TrustStandard
	default:
		bundle := r.expandBundlePath(raw)
		if _, err := os.Stat(bundle); err != nil {
			r.logger.Warn("CA bundle not found, falling back to standard trust",
				"path", bundle, "error", err)
			settings.Trust = TrustStandard
		} else {
			settings.Trust = TrustCustomBundle
			settings.CABundle = bundle
		}
	}

	r.cached = settings
	return settings, nil
}

// Invalidate drops the cached settings so the next Resolve re-reads all
// layers.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

func (r *Resolver) readSettingsFile() map[string]string {
	if r.filePath == "" {
		return nil
	}
	values, err := godotenv.Read(r.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("settings file unreadable, skipping layer",
				"path", r.filePath, "error", err)
		}
		return nil
	}
	return values
}

// expandBundlePath expands ~ and $VAR references and anchors relative paths
// at the settings file's directory (the toolkit install dir).
func (r *Resolver) expandBundlePath(raw string) string {
	path := os.ExpandEnv(raw)
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) && r.filePath != "" {
		path = filepath.Join(filepath.Dir(r.filePath), path)
	}
	return path
}
