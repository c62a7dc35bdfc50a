package engine

import (
	"context"
	"log/slog"

	"github.com/curatelab/shelfsort/catalog"
)

// SyncPlan is the minimal set of tag mutations that converges the catalog
// on the target cohort. ToTag and ToUntag are disjoint by construction.
// Re-planning with unchanged inputs yields an empty plan.
type SyncPlan struct {
	Tag     string
	ToTag   []string
	ToUntag []string
	Skipped int
}

// Empty reports whether the plan requires no mutations.
func (p SyncPlan) Empty() bool {
	return len(p.ToTag) == 0 && len(p.ToUntag) == 0
}

// SyncSummary counts the outcome of applying a plan. Per-item failures are
// counted, not fatal: partial tag convergence beats none, and a rerun is
// safe because planning is idempotent.
type SyncSummary struct {
	Tagged  int
	Removed int
	Skipped int
	Failed  int
}

// PlanTagSync computes the mutations needed to make tag membership match
// the ranked target list. Candidates are filtered in order: unknown to the
// catalog snapshot, then out of stock (when the rule says so), then bearing
// an excluded tag. Filtered or unranked items that currently bear the tag
// land in ToUntag.
func PlanTagSync(ranked []string, products []catalog.Product, tag string, excl ExclusionPolicy, excludeOutOfStock bool) SyncPlan {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	plan := SyncPlan{Tag: tag}
	keep := make(map[string]struct{}, len(ranked))

	for _, id := range ranked {
		p, ok := byID[id]
		if !ok {
			// Ranked from sales history but since removed or unpublished.
			plan.Skipped++
			continue
		}
		if excludeOutOfStock && !p.InStock() {
			plan.Skipped++
			continue
		}
		if excl.Enabled && p.HasAnyTag(excl.Tags) {
			plan.Skipped++
			continue
		}
		keep[id] = struct{}{}
		if !p.HasTag(tag) {
			plan.ToTag = append(plan.ToTag, id)
		}
	}

	for _, p := range products {
		if !p.HasTag(tag) {
			continue
		}
		if _, ok := keep[p.ID]; !ok {
			plan.ToUntag = append(plan.ToUntag, p.ID)
		}
	}

	return plan
}

// ApplySyncPlan performs one tag patch per changed item. Individual
// failures are logged and counted; the batch always runs to completion.
func ApplySyncPlan(ctx context.Context, patcher catalog.TagPatcher, products []catalog.Product, plan SyncPlan, log *slog.Logger) SyncSummary {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	summary := SyncSummary{Skipped: plan.Skipped}

	for _, id := range plan.ToTag {
		p, ok := byID[id]
		if !ok {
			summary.Failed++
			continue
		}
		tags := append(append([]string(nil), p.Tags...), plan.Tag)
		if err := patcher.UpdateProductTags(ctx, id, tags); err != nil {
			summary.Failed++
			log.Warn("tag add failed", "product", id, "tag", plan.Tag, "error", err)
			continue
		}
		summary.Tagged++
	}

	for _, id := range plan.ToUntag {
		p, ok := byID[id]
		if !ok {
			summary.Failed++
			continue
		}
		tags := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			if t != plan.Tag {
				tags = append(tags, t)
			}
		}
		if err := patcher.UpdateProductTags(ctx, id, tags); err != nil {
			summary.Failed++
			log.Warn("tag remove failed", "product", id, "tag", plan.Tag, "error", err)
			continue
		}
		summary.Removed++
	}

	return summary
}
