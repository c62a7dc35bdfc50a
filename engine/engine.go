package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/curatelab/shelfsort/catalog"
)

// CollectionRefWriter persists a collection reference discovered during a
// cohort run. This is the engine's only write into settings storage.
type CollectionRefWriter interface {
	SetCollectionRef(tenantID string, kind Kind, collectionID string) error
}

// Engine runs one classification or reorder invocation against an
// authorized catalog client. It owns no cross-invocation state; separate
// invocations for different collections are safe to run concurrently.
// Concurrent invocations for the same collection are the caller's problem
// to serialize.
type Engine struct {
	api      catalog.API
	refs     CollectionRefWriter
	driver   *JobDriver
	log      *slog.Logger
	now      func() time.Time
	pageSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPageSize overrides the fetch page size (clamped by the paginator).
func WithPageSize(n int) Option {
	return func(e *Engine) { e.pageSize = n }
}

// WithJobDriver replaces the default poll policy.
func WithJobDriver(d *JobDriver) Option {
	return func(e *Engine) { e.driver = d }
}

// New builds an Engine. refs may be nil when no settings write-back is
// wanted (discovered collection references are then only logged).
func New(api catalog.API, refs CollectionRefWriter, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		api:      api,
		refs:     refs,
		log:      log,
		now:      time.Now,
		pageSize: catalog.MaxPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver == nil {
		e.driver = NewJobDriver(api, log)
	}
	return e
}

// RunCohort executes one cohort tagging invocation: fetch the catalog and
// the windowed order history, rank, then converge tag membership. Fatal
// errors (configuration, fetch) abort before anything is mutated.
func (e *Engine) RunCohort(ctx context.Context, tenantID string, rule Rule, excl ExclusionPolicy) (CohortRunResult, error) {
	result := CohortRunResult{
		RunID:  uuid.NewString(),
		Cohort: rule.Kind,
		Status: StatusFailed,
	}
	log := e.log.With("run", result.RunID, "tenant", tenantID, "cohort", rule.Kind)

	if err := validateCohortRule(rule); err != nil {
		result.Message = err.Error()
		return result, err
	}

	now := e.now()

	products, err := e.fetchProducts(ctx)
	if err != nil {
		result.Message = "catalog fetch failed: " + err.Error()
		return result, err
	}

	agg := NewSalesAggregate()
	if rule.Kind != KindNewArrivals {
		since := now.AddDate(0, 0, -rule.lookbackDays())
		orders, err := e.fetchOrders(ctx, since)
		if err != nil {
			result.Message = "order fetch failed: " + err.Error()
			return result, err
		}
		agg = AggregateOrders(orders)
	}

	ranker, err := RankerFor(rule.Kind)
	if err != nil {
		result.Message = err.Error()
		return result, err
	}
	ranked := ranker.Rank(agg, products, rule, now)
	if len(ranked) == 0 {
		result.Status = StatusNoQualifyingItems
		result.Message = fmt.Sprintf("no items qualified for %s in the lookback window", rule.Kind)
		log.Info("cohort run finished", "status", result.Status)
		return result, nil
	}

	e.ensureCollectionRef(ctx, tenantID, rule, log)

	plan := PlanTagSync(ranked, products, rule.Tag, excl, rule.ExcludeOutOfStock)
	summary := ApplySyncPlan(ctx, e.api, products, plan, log)

	result.Tagged = summary.Tagged
	result.Removed = summary.Removed
	result.Skipped = summary.Skipped
	result.Failed = summary.Failed
	if summary.Failed > 0 {
		result.Status = StatusPartialFailure
		result.Message = fmt.Sprintf("converged with %d failed mutations (tagged %d, removed %d, skipped %d)",
			summary.Failed, summary.Tagged, summary.Removed, summary.Skipped)
	} else {
		result.Status = StatusCompleted
		result.Message = fmt.Sprintf("tagged %d, removed %d, skipped %d",
			summary.Tagged, summary.Removed, summary.Skipped)
	}

	log.Info("cohort run finished",
		"status", result.Status,
		"tagged", result.Tagged,
		"removed", result.Removed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// RunReorder composes and submits the full order for a collection, then
// drives the reorder job to completion.
func (e *Engine) RunReorder(ctx context.Context, tenantID string, cfg OrderingConfig) (ReorderResult, error) {
	result := ReorderResult{
		RunID:  uuid.NewString(),
		Status: StatusFailed,
	}
	log := e.log.With("run", result.RunID, "tenant", tenantID, "collection", cfg.CollectionID)

	if cfg.CollectionID == "" {
		err := fmt.Errorf("%w: ordering requires a collection id", ErrInvalidSettings)
		result.Message = err.Error()
		return result, err
	}
	for _, rule := range cfg.TagRules {
		if rule.Tag == "" || !ValidBucket(rule.Bucket) {
			err := fmt.Errorf("%w: tag rule %q/%q", ErrInvalidSettings, rule.Tag, rule.Bucket)
			result.Message = err.Error()
			return result, err
		}
	}

	products, err := e.fetchCollectionProducts(ctx, cfg.CollectionID)
	if err != nil {
		result.Message = "collection fetch failed: " + err.Error()
		return result, err
	}
	if len(products) == 0 {
		result.Status = StatusNoQualifyingItems
		result.Message = "collection has no products to order"
		return result, nil
	}

	moves := ComposeOrder(products, cfg, e.now())
	result.Moves = len(moves)

	ref, err := e.api.SetCollectionOrder(ctx, cfg.CollectionID, moves)
	if err != nil {
		result.Message = "order submission rejected: " + err.Error()
		return result, err
	}

	state, err := e.driver.Await(ctx, ref)
	if err != nil {
		result.Message = "job polling interrupted: " + err.Error()
		return result, err
	}
	switch state {
	case JobDone:
		result.Status = StatusCompleted
		result.Message = fmt.Sprintf("reordered %d products", len(moves))
	case JobTimedOut:
		result.Status = StatusJobTimeout
		result.Message = fmt.Sprintf("order for %d products accepted; job still running after poll budget", len(moves))
	default:
		result.Status = StatusJobTimeout
		result.Message = fmt.Sprintf("order accepted; job state %s", state)
	}

	log.Info("reorder run finished", "status", result.Status, "moves", result.Moves)
	return result, nil
}

func validateCohortRule(rule Rule) error {
	if _, err := ParseKind(string(rule.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if !rule.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabledCohort, rule.Kind)
	}
	if rule.Tag == "" {
		return fmt.Errorf("%w: cohort %s has no target tag", ErrInvalidSettings, rule.Kind)
	}
	if rule.TargetCount <= 0 {
		return fmt.Errorf("%w: cohort %s target count must be positive", ErrInvalidSettings, rule.Kind)
	}
	if (rule.Kind == KindNewArrivals || rule.Kind == KindAging) && rule.WindowDays <= 0 {
		return fmt.Errorf("%w: cohort %s needs a positive window", ErrInvalidSettings, rule.Kind)
	}
	return nil
}

// ensureCollectionRef resolves the cohort's named collection, creating it
// when absent, and writes the discovered ID back to settings once. A
// failure here is logged and does not abort tagging.
func (e *Engine) ensureCollectionRef(ctx context.Context, tenantID string, rule Rule, log *slog.Logger) {
	if rule.CollectionTitle == "" || rule.CollectionID != "" {
		return
	}
	id, err := e.api.FindCollectionByTitle(ctx, rule.CollectionTitle)
	if err != nil {
		log.Warn("collection lookup failed", "title", rule.CollectionTitle, "error", err)
		return
	}
	if id == "" {
		id, err = e.api.CreateCollection(ctx, rule.CollectionTitle)
		if err != nil {
			log.Warn("collection create failed", "title", rule.CollectionTitle, "error", err)
			return
		}
	}
	if e.refs == nil {
		log.Info("discovered collection", "title", rule.CollectionTitle, "id", id)
		return
	}
	if err := e.refs.SetCollectionRef(tenantID, rule.Kind, id); err != nil {
		log.Warn("collection ref write-back failed", "title", rule.CollectionTitle, "id", id, "error", err)
	}
}

func (e *Engine) fetchProducts(ctx context.Context) ([]catalog.Product, error) {
	pager := catalog.NewPaginator(func(ctx context.Context, pageSize int, cursor string) (catalog.Page[catalog.Product], error) {
		return e.api.SearchProducts(ctx, pageSize, cursor)
	}, e.pageSize)
	return pager.All(ctx)
}

func (e *Engine) fetchCollectionProducts(ctx context.Context, collectionID string) ([]catalog.Product, error) {
	pager := catalog.NewPaginator(func(ctx context.Context, pageSize int, cursor string) (catalog.Page[catalog.Product], error) {
		return e.api.CollectionProducts(ctx, collectionID, pageSize, cursor)
	}, e.pageSize)
	return pager.All(ctx)
}

func (e *Engine) fetchOrders(ctx context.Context, since time.Time) ([]catalog.Order, error) {
	pager := catalog.NewPaginator(func(ctx context.Context, pageSize int, cursor string) (catalog.Page[catalog.Order], error) {
		return e.api.SearchOrders(ctx, since, pageSize, cursor)
	}, e.pageSize)
	return pager.All(ctx)
}
