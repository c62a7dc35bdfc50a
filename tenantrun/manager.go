// Package tenantrun coordinates engine invocations across tenants: one
// settings store, one engine, and a per-tenant lock so concurrent triggers
// for the same tenant never interleave tag mutations.
package tenantrun

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/curatelab/shelfsort/engine"
	"github.com/curatelab/shelfsort/settings"
)

// Manager owns per-tenant run serialization and the settings read path.
type Manager struct {
	store settings.Store
	cache settings.Cache
	eng   *engine.Engine
	log   *slog.Logger

	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

// NewManager creates a manager. cache may be nil to read the store directly
// on every run.
func NewManager(store settings.Store, cache settings.Cache, eng *engine.Engine, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store: store,
		cache: cache,
		eng:   eng,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// LoadAllTenants reads every tenant's record once, validating stored
// documents and warming the cache. Invalid records are reported but do not
// stop the load; their tenants just fail at run time.
func (m *Manager) LoadAllTenants() error {
	tenants, err := m.store.ListTenants()
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	loaded := 0
	for _, tenantID := range tenants {
		rec, err := m.store.Get(tenantID)
		if err != nil {
			return fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
		}
		if err := settings.Validate(rec); err != nil {
			m.log.Warn("stored settings failed validation", "tenant", tenantID, "error", err)
			continue
		}
		if m.cache != nil {
			m.cache.Set(tenantID, rec)
		}
		loaded++
	}

	m.log.Info("tenants loaded", "total", len(tenants), "valid", loaded)
	return nil
}

// Settings returns a tenant's record, read through the cache.
func (m *Manager) Settings(tenantID string) (*settings.Record, error) {
	if m.cache != nil {
		if rec := m.cache.Get(tenantID); rec != nil {
			return rec, nil
		}
	}
	rec, err := m.store.Get(tenantID)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Set(tenantID, rec)
	}
	return rec, nil
}

// UpdateSettings validates and persists a record, then invalidates the
// cache entry so the next run sees the new configuration.
func (m *Manager) UpdateSettings(rec *settings.Record) error {
	if err := settings.Validate(rec); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidSettings, err)
	}
	if err := m.store.Upsert(rec); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.Invalidate(rec.TenantID)
	}
	return nil
}

// ListTenants returns every tenant with a settings record.
func (m *Manager) ListTenants() ([]string, error) {
	return m.store.ListTenants()
}

// DeleteTenant removes a tenant's record and cache entry.
func (m *Manager) DeleteTenant(tenantID string) error {
	if err := m.store.Delete(tenantID); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.Invalidate(tenantID)
	}
	return nil
}

// RunCohort executes one cohort run for a tenant under its run lock. The
// cache entry is invalidated afterwards because the engine may have written
// a discovered collection reference back to the store.
func (m *Manager) RunCohort(ctx context.Context, tenantID string, kind engine.Kind) (engine.CohortRunResult, error) {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.Settings(tenantID)
	if err != nil {
		return engine.CohortRunResult{Cohort: kind, Status: engine.StatusFailed, Message: err.Error()}, err
	}

	result, err := m.eng.RunCohort(ctx, tenantID, rec.Cohort(kind), rec.Exclusion)
	if m.cache != nil {
		m.cache.Invalidate(tenantID)
	}
	return result, err
}

// RunReorder executes one collection reorder for a tenant under its run
// lock.
func (m *Manager) RunReorder(ctx context.Context, tenantID string) (engine.ReorderResult, error) {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := m.Settings(tenantID)
	if err != nil {
		return engine.ReorderResult{Status: engine.StatusFailed, Message: err.Error()}, err
	}

	return m.eng.RunReorder(ctx, tenantID, rec.Ordering)
}

// tenantLock returns the mutex serializing runs for one tenant, creating it
// on first use. Locks are never removed; the map grows with the tenant set.
func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tenantID] = lock
	}
	return lock
}
