package settings

import (
	"testing"
	"time"

	"github.com/curatelab/shelfsort/engine"
)

// TestInMemoryCache_SetAndGet verifies basic store and retrieve.
func TestInMemoryCache_SetAndGet(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{})
	cache.Set("t1", validRecord())

	got := cache.Get("t1")
	if got == nil {
		t.Fatal("Expected cached record, got nil")
	}
	if got.TenantID != "t1" {
		t.Errorf("Expected tenant t1, got %s", got.TenantID)
	}
}

// TestInMemoryCache_MissReturnsNil verifies unknown tenants miss.
func TestInMemoryCache_MissReturnsNil(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{})
	if got := cache.Get("ghost"); got != nil {
		t.Errorf("Expected nil on miss, got %+v", got)
	}
}

// TestInMemoryCache_TTLExpiry verifies entries expire after the TTL.
func TestInMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{TTL: time.Millisecond})
	cache.Set("t1", validRecord())

	time.Sleep(5 * time.Millisecond)
	if got := cache.Get("t1"); got != nil {
		t.Error("Expected expired entry to miss")
	}
}

// TestInMemoryCache_ZeroTTLNeverExpires verifies TTL 0 means manual
// invalidation only.
func TestInMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{TTL: 0})
	cache.Set("t1", validRecord())

	time.Sleep(2 * time.Millisecond)
	if cache.Get("t1") == nil {
		t.Error("Expected entry to survive with zero TTL")
	}
}

// TestInMemoryCache_Invalidate verifies single-tenant and full
// invalidation.
func TestInMemoryCache_Invalidate(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{})
	recB := validRecord()
	recB.TenantID = "t2"
	cache.Set("t1", validRecord())
	cache.Set("t2", recB)

	cache.Invalidate("t1")
	if cache.Get("t1") != nil {
		t.Error("Expected t1 to be invalidated")
	}
	if cache.Get("t2") == nil {
		t.Error("Expected t2 to survive single invalidation")
	}

	cache.InvalidateAll()
	if cache.Get("t2") != nil {
		t.Error("Expected t2 to be gone after InvalidateAll")
	}
}

// TestInMemoryCache_ReturnsCopy verifies cached records cannot be mutated
// through the returned pointer.
func TestInMemoryCache_ReturnsCopy(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{})
	cache.Set("t1", validRecord())

	got := cache.Get("t1")
	rule := got.Cohorts[engine.KindBestsellers]
	rule.Tag = "mutated"
	got.Cohorts[engine.KindBestsellers] = rule

	fresh := cache.Get("t1")
	if fresh.Cohorts[engine.KindBestsellers].Tag != "bestseller" {
		t.Error("Mutation leaked into the cache")
	}
}
