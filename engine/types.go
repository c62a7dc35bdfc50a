// Package engine implements the product classification and deterministic
// ordering pipeline: sales aggregation over a lookback window, cohort
// ranking, idempotent tag synchronization, collection order composition,
// and the asynchronous reorder job driver.
//
// One Engine invocation is self-contained: configuration is read once,
// passed by value, and immutable for the run. The only durable side effects
// are product tag patches and the submitted collection order.
package engine

import (
	"errors"
	"fmt"
	"time"
)

// Kind names one of the four cohort strategies.
type Kind string

const (
	KindBestsellers Kind = "bestsellers"
	KindTrending    Kind = "trending"
	KindNewArrivals Kind = "new-arrivals"
	KindAging       Kind = "aging"
)

// Kinds lists all cohort kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindBestsellers, KindTrending, KindNewArrivals, KindAging}
}

// ParseKind validates a cohort name from the outside world.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBestsellers, KindTrending, KindNewArrivals, KindAging:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown cohort kind %q", s)
}

// Lookback windows fixed by the classification rules. New-arrivals and
// aging windows are tenant-configurable instead.
const (
	bestsellersLookbackDays = 180
	trendingLookbackDays    = 7
)

// trendingBucket is the recency granularity for the trending comparator.
// Items whose last sale falls inside the same bucket are co-recent and
// compared by volume.
const trendingBucket = 12 * time.Hour

// Rule configures one cohort run.
type Rule struct {
	Kind              Kind   `json:"kind"`
	Enabled           bool   `json:"enabled"`
	Tag               string `json:"tag"`
	TargetCount       int    `json:"target_count"`
	WindowDays        int    `json:"window_days,omitempty"`
	ExcludeOutOfStock bool   `json:"exclude_out_of_stock"`

	// CollectionTitle optionally names a collection the cohort should be
	// attached to. CollectionID is the discovered reference, written back
	// to settings once resolved.
	CollectionTitle string `json:"collection_title,omitempty"`
	CollectionID    string `json:"collection_id,omitempty"`
}

// lookbackDays returns the effective sales window for the rule. Bestsellers
// and trending windows are fixed regardless of configuration.
func (r Rule) lookbackDays() int {
	switch r.Kind {
	case KindBestsellers:
		return bestsellersLookbackDays
	case KindTrending:
		return trendingLookbackDays
	default:
		return r.WindowDays
	}
}

// ExclusionPolicy bars items bearing any listed tag from ever being added
// to a cohort tag, regardless of rank.
type ExclusionPolicy struct {
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags,omitempty"`
}

// TagPositionBucket is one of the three fixed placement buckets.
type TagPositionBucket string

const (
	BucketAfterFeatured    TagPositionBucket = "after-featured"
	BucketBeforeOutOfStock TagPositionBucket = "before-out-of-stock"
	BucketBottom           TagPositionBucket = "bottom"
)

// ValidBucket reports whether b is one of the three placement buckets.
func ValidBucket(b TagPositionBucket) bool {
	switch b {
	case BucketAfterFeatured, BucketBeforeOutOfStock, BucketBottom:
		return true
	}
	return false
}

// TagPositionRule pins items bearing Tag into a placement bucket. Rules are
// evaluated in declaration order; the first matching rule wins for an item.
type TagPositionRule struct {
	Tag    string            `json:"tag"`
	Bucket TagPositionBucket `json:"bucket"`
}

// BehaviorFlags are the global ordering toggles.
type BehaviorFlags struct {
	PushNewToTop       bool `json:"push_new_to_top"`
	PushOutOfStockDown bool `json:"push_out_of_stock_down"`
	NewWindowDays      int  `json:"new_window_days,omitempty"`
}

// FeaturedList is the manually curated pin list. Only the first Limit
// entries are pinned; Limit == 0 pins the whole list. Overflow entries fall
// through to the computed order as if never featured.
type FeaturedList struct {
	ProductIDs []string `json:"product_ids,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// Pinned returns the effective pin list after applying the cap.
func (f FeaturedList) Pinned() []string {
	if f.Limit <= 0 || f.Limit >= len(f.ProductIDs) {
		return f.ProductIDs
	}
	return f.ProductIDs[:f.Limit]
}

// OrderingConfig is everything the order composer needs for one collection.
type OrderingConfig struct {
	CollectionID string            `json:"collection_id"`
	Featured     FeaturedList      `json:"featured"`
	TagRules     []TagPositionRule `json:"tag_rules,omitempty"`
	Behavior     BehaviorFlags     `json:"behavior"`
}

// RunStatus is the outcome class of an invocation. Every status is distinct
// so callers can never mistake "nothing qualified" for "failed".
type RunStatus string

const (
	StatusCompleted         RunStatus = "completed"
	StatusNoQualifyingItems RunStatus = "no-qualifying-items"
	StatusPartialFailure    RunStatus = "partial-failure"
	StatusJobTimeout        RunStatus = "job-timeout"
	StatusFailed            RunStatus = "failed"
)

// CohortRunResult summarizes one cohort tagging invocation.
type CohortRunResult struct {
	RunID   string    `json:"run_id"`
	Cohort  Kind      `json:"cohort"`
	Status  RunStatus `json:"status"`
	Tagged  int       `json:"tagged"`
	Skipped int       `json:"skipped"`
	Removed int       `json:"removed"`
	Failed  int       `json:"failed"`
	Message string    `json:"message"`
}

// Success reports whether the run's side effects converged (possibly with
// caveats). StatusFailed is the only non-success status.
func (r CohortRunResult) Success() bool {
	return r.Status != StatusFailed
}

// ReorderResult summarizes one order-composition invocation.
type ReorderResult struct {
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status"`
	Moves   int       `json:"moves"`
	Message string    `json:"message"`
}

// Success reports whether the move list was accepted. A timed-out job is
// still a success: the platform accepted the order and will finish applying
// it on its own.
func (r ReorderResult) Success() bool {
	return r.Status != StatusFailed
}

// Error taxonomy. Fatal errors stop the pipeline at the stage they occur;
// nothing downstream runs and nothing is mutated.
var (
	// ErrDisabledCohort is returned when a run is requested for a cohort
	// whose rule is switched off.
	ErrDisabledCohort = errors.New("cohort is disabled")

	// ErrInvalidSettings marks configuration problems detected before any
	// fetch.
	ErrInvalidSettings = errors.New("invalid settings")
)
