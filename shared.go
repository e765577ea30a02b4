package jirapo

import "sync"

// Shared is the explicit process-wide holder for the one resolver + client
// pair a toolkit run uses. Report code receives it (or the Client it hands
// out) by reference instead of reaching for package globals, and tests
// reset it with Invalidate.
type Shared struct {
	resolver *Resolver
	options  []Option

	mu     sync.Mutex
	client *Client
}

// NewShared couples a Resolver with the client options every caller should
// get. The client is built lazily on first use.
func NewShared(resolver *Resolver, options ...Option) *Shared {
	return &Shared{
		resolver: resolver,
		options:  options,
	}
}

// Client returns the process-wide client, building it from resolved
// settings on first call. All callers receive the same instance.
func (s *Shared) Client() (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	settings, err := s.resolver.Resolve()
	if err != nil {
		return nil, err
	}
	client, err := New(settings, s.options...)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// Invalidate discards the cached client and the resolver's cached settings
// so the next Client call rebuilds from fresh configuration.
func (s *Shared) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.resolver.Invalidate()
}
