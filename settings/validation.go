package settings

import (
	"fmt"
	"strings"

	"github.com/curatelab/shelfsort/catalog"
	"github.com/curatelab/shelfsort/engine"
)

const maxTagLength = 255

// Validate checks a settings record before it is persisted. A record that
// passes here can always be executed; the engine only re-checks the parts
// that can drift at runtime.
func Validate(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("settings record cannot be nil")
	}
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	for key, rule := range rec.Cohorts {
		if _, err := engine.ParseKind(string(key)); err != nil {
			return fmt.Errorf("invalid cohort key: %w", err)
		}
		if rule.Kind != key {
			return fmt.Errorf("cohort %q declares mismatched kind %q", key, rule.Kind)
		}
		if err := validateCohortRule(rule); err != nil {
			return fmt.Errorf("cohort %q: %w", key, err)
		}
	}

	for _, tag := range rec.Exclusion.Tags {
		if err := validateTag(tag); err != nil {
			return fmt.Errorf("exclusion tag: %w", err)
		}
	}
	if rec.Exclusion.Enabled && len(rec.Exclusion.Tags) == 0 {
		return fmt.Errorf("exclusion policy is enabled but lists no tags")
	}

	return validateOrdering(rec.Ordering)
}

// validateCohortRule checks one cohort's configuration. Disabled cohorts
// only need a self-consistent shape; enabled ones must be runnable.
func validateCohortRule(rule engine.Rule) error {
	if !rule.Enabled {
		return nil
	}
	if err := validateTag(rule.Tag); err != nil {
		return err
	}
	if rule.TargetCount < 1 || rule.TargetCount > catalog.MaxPageSize {
		return fmt.Errorf("target count %d out of range 1-%d", rule.TargetCount, catalog.MaxPageSize)
	}
	if (rule.Kind == engine.KindNewArrivals || rule.Kind == engine.KindAging) && rule.WindowDays < 1 {
		return fmt.Errorf("window days must be positive, got %d", rule.WindowDays)
	}
	return nil
}

func validateOrdering(cfg engine.OrderingConfig) error {
	seen := make(map[string]bool, len(cfg.TagRules))
	for i, rule := range cfg.TagRules {
		if err := validateTag(rule.Tag); err != nil {
			return fmt.Errorf("ordering tag rule %d: %w", i, err)
		}
		if !engine.ValidBucket(rule.Bucket) {
			return fmt.Errorf("ordering tag rule %d has unknown bucket %q", i, rule.Bucket)
		}
		if seen[rule.Tag] {
			return fmt.Errorf("ordering tag rule %d duplicates tag %q", i, rule.Tag)
		}
		seen[rule.Tag] = true
	}

	if cfg.Featured.Limit < 0 {
		return fmt.Errorf("featured limit cannot be negative, got %d", cfg.Featured.Limit)
	}
	for i, id := range cfg.Featured.ProductIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("featured product %d has empty id", i)
		}
	}

	if cfg.Behavior.PushNewToTop && cfg.Behavior.NewWindowDays < 1 {
		return fmt.Errorf("push-new-to-top requires a positive new window, got %d", cfg.Behavior.NewWindowDays)
	}

	return nil
}

func validateTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if strings.TrimSpace(tag) != tag {
		return fmt.Errorf("tag %q has leading/trailing whitespace", tag)
	}
	if len(tag) > maxTagLength {
		return fmt.Errorf("tag length %d exceeds maximum of %d characters", len(tag), maxTagLength)
	}
	return nil
}
