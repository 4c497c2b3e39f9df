package cache

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a size-bounded cache that evicts the least recently used entry.
type LRUCache struct {
	entries *lru.Cache[string, json.RawMessage]
}

// NewLRUCache creates a cache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, json.RawMessage](size)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

// Get retrieves a value and marks it recently used.
func (c *LRUCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	return c.entries.Get(key)
}

// Set stores a copy of value, evicting the oldest entry when full.
func (c *LRUCache) Set(_ context.Context, key string, value json.RawMessage) {
	c.entries.Add(key, clone(value))
}

// Len returns the number of entries.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

var _ Cache = (*LRUCache)(nil)
