package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/curatelab/shelfsort/engine"
)

// Store manages settings persistence and retrieval.
type Store interface {
	// Get returns the settings record for a tenant.
	Get(tenantID string) (*Record, error)

	// Upsert creates or replaces a tenant's record.
	Upsert(record *Record) error

	// SetCollectionRef writes back a collection reference discovered by the
	// engine for one cohort.
	SetCollectionRef(tenantID string, kind engine.Kind, collectionID string) error

	// ListTenants returns every tenant with a settings record.
	ListTenants() ([]string, error)

	// Delete removes a tenant's record.
	Delete(tenantID string) error
}

// InMemoryStore implements Store using an in-memory map. Thread-safe with
// RWMutex; records are cloned on the way in and out.
type InMemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new in-memory settings store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
	}
}

// Get retrieves a tenant's record.
func (s *InMemoryStore) Get(tenantID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	return rec.Clone(), nil
}

// Upsert creates or replaces a record, preserving CreatedAt on replace.
func (s *InMemoryStore) Upsert(record *Record) error {
	if record == nil || record.TenantID == "" {
		return fmt.Errorf("record with a tenant id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	stored := record.Clone()
	if existing, exists := s.records[record.TenantID]; exists {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.records[record.TenantID] = stored
	return nil
}

// SetCollectionRef updates one cohort's collection reference in place.
func (s *InMemoryStore) SetCollectionRef(tenantID string, kind engine.Kind, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[tenantID]
	if !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	rule, ok := rec.Cohorts[kind]
	if !ok {
		return fmt.Errorf("tenant %s has no cohort %q", tenantID, kind)
	}
	rule.CollectionID = collectionID
	rec.Cohorts[kind] = rule
	rec.UpdatedAt = time.Now()
	return nil
}

// ListTenants returns all tenant IDs with a record.
func (s *InMemoryStore) ListTenants() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]string, 0, len(s.records))
	for tenantID := range s.records {
		tenants = append(tenants, tenantID)
	}
	return tenants, nil
}

// Delete removes a tenant's record.
func (s *InMemoryStore) Delete(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[tenantID]; !exists {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	delete(s.records, tenantID)
	return nil
}
