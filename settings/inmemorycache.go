package settings

import (
	"sync"
	"time"
)

// InMemoryCache is a simple in-memory implementation of Cache.
// Thread-safe for concurrent access.
type InMemoryCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

type cacheEntry struct {
	record   *Record
	cachedAt time.Time
}

// NewInMemoryCache creates a new in-memory settings cache.
func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get retrieves a cached record. Returns nil on miss or expiry.
func (c *InMemoryCache) Get(tenantID string) *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Return a copy to prevent external modifications.
	return entry.record.Clone()
}

// Set stores a record in cache.
func (c *InMemoryCache) Set(tenantID string, record *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tenantID] = cacheEntry{
		record:   record.Clone(),
		cachedAt: time.Now(),
	}
}

// Invalidate clears one tenant's entry.
func (c *InMemoryCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, tenantID)
}

// InvalidateAll clears the whole cache.
func (c *InMemoryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
