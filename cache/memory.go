package cache

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryCache is an unbounded in-memory cache. Entries live until the
// process exits.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewMemoryCache creates an empty unbounded cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]json.RawMessage),
	}
}

// Get retrieves a value from the cache. Returns (nil, false) on miss.
func (c *MemoryCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	return value, ok
}

// Set stores a copy of value under key.
func (c *MemoryCache) Set(_ context.Context, key string, value json.RawMessage) {
	value = clone(value)

	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
