package settings

import "time"

// Cache provides an abstraction for caching settings records per tenant.
// This allows swapping between in-memory, Redis, or other implementations.
type Cache interface {
	// Get retrieves a cached record, returns nil on miss or expiry.
	Get(tenantID string) *Record

	// Set stores a record in cache.
	Set(tenantID string, record *Record)

	// Invalidate clears one tenant's entry, forcing a refresh on next Get.
	Invalidate(tenantID string)

	// InvalidateAll clears the whole cache.
	InvalidateAll()
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Set to 0 for no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for settings caching.
// Settings change rarely and mutations invalidate explicitly, so a long
// TTL only guards against missed invalidations.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 5 * time.Minute,
	}
}
