package settings

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/curatelab/shelfsort/engine"
)

// PostgresStore implements Store backed by PostgreSQL. The whole record is
// one JSONB document; tenant_id is the primary key.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed settings store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get retrieves a tenant's record.
func (s *PostgresStore) Get(tenantID string) (*Record, error) {
	var doc []byte
	var createdAt, updatedAt time.Time
	err := s.db.QueryRow(`
		SELECT record, created_at, updated_at
		FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID).Scan(&doc, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("invalid settings document for tenant %s: %w", tenantID, err)
	}
	rec.TenantID = tenantID
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

// Upsert creates or replaces a record. CreatedAt is preserved on conflict.
func (s *PostgresStore) Upsert(record *Record) error {
	if record == nil || record.TenantID == "" {
		return fmt.Errorf("record with a tenant id is required")
	}

	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tenant_settings (tenant_id, record, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (tenant_id)
		DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()
	`, record.TenantID, doc)
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}

// SetCollectionRef rewrites one cohort's collection reference inside the
// stored document. Read-modify-write in a transaction with a row lock, so
// concurrent write-backs for different cohorts cannot clobber each other.
func (s *PostgresStore) SetCollectionRef(tenantID string, kind engine.Kind, collectionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var doc []byte
	err = tx.QueryRow(`
		SELECT record FROM tenant_settings
		WHERE tenant_id = $1
		FOR UPDATE
	`, tenantID).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock settings row: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return fmt.Errorf("invalid settings document for tenant %s: %w", tenantID, err)
	}
	rule, ok := rec.Cohorts[kind]
	if !ok {
		return fmt.Errorf("tenant %s has no cohort %q", tenantID, kind)
	}
	rule.CollectionID = collectionID
	rec.Cohorts[kind] = rule

	updated, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE tenant_settings
		SET record = $1, updated_at = NOW()
		WHERE tenant_id = $2
	`, updated, tenantID); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	return tx.Commit()
}

// ListTenants returns all tenant IDs with a settings record.
func (s *PostgresStore) ListTenants() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT tenant_id FROM tenant_settings
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}

// Delete removes a tenant's record.
func (s *PostgresStore) Delete(tenantID string) error {
	result, err := s.db.Exec(`
		DELETE FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	return nil
}
