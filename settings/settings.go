// Package settings persists per-tenant curation configuration: cohort
// rules, the exclusion policy, and the collection ordering setup. Records
// are stored whole; an engine run reads one record and never sees later
// edits.
package settings

import (
	"errors"
	"time"

	"github.com/curatelab/shelfsort/engine"
)

// ErrNotFound is returned when no settings record exists for a tenant.
var ErrNotFound = errors.New("tenant settings not found")

// Record is the full configuration for one tenant.
type Record struct {
	TenantID  string                       `json:"tenant_id"`
	Cohorts   map[engine.Kind]engine.Rule  `json:"cohorts"`
	Exclusion engine.ExclusionPolicy       `json:"exclusion"`
	Ordering  engine.OrderingConfig        `json:"ordering"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// NewRecord returns a record with every cohort present but disabled, so a
// tenant's settings document always lists all four kinds.
func NewRecord(tenantID string) *Record {
	cohorts := make(map[engine.Kind]engine.Rule, len(engine.Kinds()))
	for _, kind := range engine.Kinds() {
		cohorts[kind] = engine.Rule{Kind: kind}
	}
	return &Record{
		TenantID: tenantID,
		Cohorts:  cohorts,
	}
}

// Cohort returns the rule for a kind, or a disabled zero rule when the
// record predates that cohort.
func (r *Record) Cohort(kind engine.Kind) engine.Rule {
	if rule, ok := r.Cohorts[kind]; ok {
		return rule
	}
	return engine.Rule{Kind: kind}
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing slices or maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Cohorts = make(map[engine.Kind]engine.Rule, len(r.Cohorts))
	for k, v := range r.Cohorts {
		out.Cohorts[k] = v
	}
	out.Exclusion.Tags = append([]string(nil), r.Exclusion.Tags...)
	out.Ordering.Featured.ProductIDs = append([]string(nil), r.Ordering.Featured.ProductIDs...)
	out.Ordering.TagRules = append([]engine.TagPositionRule(nil), r.Ordering.TagRules...)
	return &out
}
