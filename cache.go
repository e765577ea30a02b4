package jirapo

import (
	"sync"
	"time"
)

// InMemoryCache is the default Cache: a process-lifetime TTL map. Sprint
// and board metadata barely change within one report run, so re-fetching
// them per script section is pure waste.
type InMemoryCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		store: make(map[string]*CacheEntry),
	}
}

// Get returns the entry for key if present and not expired.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.store, key)
		return nil, false
	}
	return entry, true
}

// Set stores an entry under key for ttl.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.ExpiresAt = time.Now().Add(ttl)
	c.store[key] = entry
}

// Delete removes one entry.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

// Clear empties the cache; tests and long-lived callers use it to force
// fresh data.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*CacheEntry)
}

// Len returns the number of live entries (expired ones included until next
// Get).
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
