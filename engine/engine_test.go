package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curatelab/shelfsort/catalog"
)

var engineNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeAPI is an in-memory catalog.API with failure switches per concern.
type fakeAPI struct {
	products    []catalog.Product
	orders      []catalog.Order
	productsErr error
	ordersErr   error

	tagUpdates map[string][]string
	tagFail    map[string]bool

	collections map[string]string
	created     []string

	submitted    [][]catalog.Move
	submitErr    error
	jobDoneAfter int
	polls        int

	orderFetches   int
	productFetches int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tagUpdates:   make(map[string][]string),
		tagFail:      make(map[string]bool),
		collections:  make(map[string]string),
		jobDoneAfter: 1,
	}
}

func (f *fakeAPI) SearchOrders(_ context.Context, since time.Time, _ int, _ string) (catalog.Page[catalog.Order], error) {
	f.orderFetches++
	if f.ordersErr != nil {
		return catalog.Page[catalog.Order]{}, f.ordersErr
	}
	var out []catalog.Order
	for _, o := range f.orders {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return catalog.Page[catalog.Order]{Records: out}, nil
}

func (f *fakeAPI) SearchProducts(_ context.Context, _ int, _ string) (catalog.Page[catalog.Product], error) {
	f.productFetches++
	if f.productsErr != nil {
		return catalog.Page[catalog.Product]{}, f.productsErr
	}
	return catalog.Page[catalog.Product]{Records: f.products}, nil
}

func (f *fakeAPI) CollectionProducts(ctx context.Context, _ string, pageSize int, cursor string) (catalog.Page[catalog.Product], error) {
	return f.SearchProducts(ctx, pageSize, cursor)
}

func (f *fakeAPI) UpdateProductTags(_ context.Context, productID string, tags []string) error {
	if f.tagFail[productID] {
		return errors.New("mutation rejected")
	}
	f.tagUpdates[productID] = tags
	return nil
}

func (f *fakeAPI) SetCollectionOrder(_ context.Context, _ string, moves []catalog.Move) (catalog.JobRef, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, moves)
	return "job-1", nil
}

func (f *fakeAPI) JobDone(_ context.Context, _ catalog.JobRef) (bool, error) {
	f.polls++
	return f.jobDoneAfter > 0 && f.polls >= f.jobDoneAfter, nil
}

func (f *fakeAPI) FindCollectionByTitle(_ context.Context, title string) (string, error) {
	return f.collections[title], nil
}

func (f *fakeAPI) CreateCollection(_ context.Context, title string) (string, error) {
	id := "col-" + title
	f.collections[title] = id
	f.created = append(f.created, title)
	return id, nil
}

// fakeRefWriter records collection reference write-backs.
type fakeRefWriter struct {
	calls []string
	err   error
}

func (w *fakeRefWriter) SetCollectionRef(tenantID string, kind Kind, collectionID string) error {
	w.calls = append(w.calls, tenantID+"/"+string(kind)+"/"+collectionID)
	return w.err
}

func testEngine(api catalog.API, refs CollectionRefWriter) *Engine {
	driver := NewJobDriver(api, discardLog())
	driver.sleep = noSleep
	return New(api, refs, discardLog(), WithClock(func() time.Time { return engineNow }), WithJobDriver(driver))
}

func sellingOrder(daysAgo int, productID string, qty int) catalog.Order {
	created := engineNow.AddDate(0, 0, -daysAgo)
	return catalog.Order{
		ID:        "o-" + productID,
		CreatedAt: created,
		LineItems: []catalog.LineItem{{ProductID: productID, Quantity: qty, Amount: decimal.NewFromInt(int64(qty))}},
	}
}

// TestRunCohort_DisabledCohortAbortsBeforeFetch verifies a disabled rule
// fails fast without touching the catalog.
func TestRunCohort_DisabledCohortAbortsBeforeFetch(t *testing.T) {
	api := newFakeAPI()
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindBestsellers, Tag: "bestseller", TargetCount: 10}, ExclusionPolicy{})
	if !errors.Is(err, ErrDisabledCohort) {
		t.Fatalf("Expected ErrDisabledCohort, got: %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("Expected StatusFailed, got %s", result.Status)
	}
	if api.productFetches != 0 || api.orderFetches != 0 {
		t.Error("Disabled cohort must not fetch anything")
	}
}

// TestRunCohort_InvalidSettingsAbortBeforeFetch verifies configuration
// errors are fatal before any fetch.
func TestRunCohort_InvalidSettingsAbortBeforeFetch(t *testing.T) {
	api := newFakeAPI()
	eng := testEngine(api, nil)

	cases := []Rule{
		{Kind: KindBestsellers, Enabled: true, TargetCount: 10},               // no tag
		{Kind: KindBestsellers, Enabled: true, Tag: "x"},                      // no count
		{Kind: KindAging, Enabled: true, Tag: "x", TargetCount: 10},           // no window
		{Kind: Kind("velocity"), Enabled: true, Tag: "x", TargetCount: 10},    // unknown kind
	}
	for _, rule := range cases {
		_, err := eng.RunCohort(context.Background(), "t1", rule, ExclusionPolicy{})
		if !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("Rule %+v: expected ErrInvalidSettings, got: %v", rule, err)
		}
	}
	if api.productFetches != 0 || api.orderFetches != 0 {
		t.Error("Invalid settings must not fetch anything")
	}
}

// TestRunCohort_FetchFailureMutatesNothing verifies a failed order fetch is
// fatal and no tag mutation happens.
func TestRunCohort_FetchFailureMutatesNothing(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	api.ordersErr = errors.New("upstream 500")
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10}, ExclusionPolicy{})
	if err == nil {
		t.Fatal("Expected fetch failure error, got nil")
	}
	if result.Status != StatusFailed {
		t.Errorf("Expected StatusFailed, got %s", result.Status)
	}
	if len(api.tagUpdates) != 0 {
		t.Error("Fetch failure must not mutate tags")
	}
}

// TestRunCohort_NoQualifyingItemsIsDistinct verifies an empty ranking ends
// as its own status with a nil error and zero mutations.
func TestRunCohort_NoQualifyingItemsIsDistinct(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10}, ExclusionPolicy{})
	if err != nil {
		t.Fatalf("Expected nil error, got: %v", err)
	}
	if result.Status != StatusNoQualifyingItems {
		t.Errorf("Expected StatusNoQualifyingItems, got %s", result.Status)
	}
	if len(api.tagUpdates) != 0 {
		t.Error("Empty cohort must not mutate tags")
	}
}

// TestRunCohort_SuccessTagsAndCounts verifies the happy path: ranked items
// tagged, stale items untagged, counts reported.
func TestRunCohort_SuccessTagsAndCounts(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{
		taggedProduct("A", 5),
		taggedProduct("B", 5),
		taggedProduct("stale", 5, "bestseller"),
	}
	api.orders = []catalog.Order{
		sellingOrder(3, "A", 10),
		sellingOrder(4, "B", 6),
	}
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10}, ExclusionPolicy{})
	if err != nil {
		t.Fatalf("RunCohort failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Expected StatusCompleted, got %s (%s)", result.Status, result.Message)
	}
	if result.Tagged != 2 || result.Removed != 1 || result.Failed != 0 {
		t.Errorf("Expected tagged=2 removed=1 failed=0, got %+v", result)
	}
	if result.RunID == "" {
		t.Error("Expected a run ID")
	}
	if !hasTagIn(api.tagUpdates["A"], "bestseller") || !hasTagIn(api.tagUpdates["B"], "bestseller") {
		t.Error("Expected A and B to gain the cohort tag")
	}
	if hasTagIn(api.tagUpdates["stale"], "bestseller") {
		t.Error("Expected stale to lose the cohort tag")
	}
}

func hasTagIn(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TestRunCohort_PartialFailureStatus verifies per-item mutation failures
// produce a partial-failure status while the rest of the batch applies.
func TestRunCohort_PartialFailureStatus(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{
		taggedProduct("A", 5),
		taggedProduct("B", 5),
	}
	api.orders = []catalog.Order{
		sellingOrder(3, "A", 10),
		sellingOrder(4, "B", 6),
	}
	api.tagFail["A"] = true
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10}, ExclusionPolicy{})
	if err != nil {
		t.Fatalf("RunCohort failed: %v", err)
	}
	if result.Status != StatusPartialFailure {
		t.Errorf("Expected StatusPartialFailure, got %s", result.Status)
	}
	if result.Tagged != 1 || result.Failed != 1 {
		t.Errorf("Expected tagged=1 failed=1, got %+v", result)
	}
	if !result.Success() {
		t.Error("Partial failure still counts as a successful run")
	}
}

// TestRunCohort_NewArrivalsSkipsOrderFetch verifies the new-arrivals cohort
// never touches order history.
func TestRunCohort_NewArrivalsSkipsOrderFetch(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{
		product("fresh", engineNow.AddDate(0, 0, -1)),
	}
	api.ordersErr = errors.New("order endpoint is down")
	eng := testEngine(api, nil)

	result, err := eng.RunCohort(context.Background(), "t1", Rule{Kind: KindNewArrivals, Enabled: true, Tag: "new", TargetCount: 10, WindowDays: 14}, ExclusionPolicy{})
	if err != nil {
		t.Fatalf("RunCohort failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Expected StatusCompleted, got %s", result.Status)
	}
	if api.orderFetches != 0 {
		t.Errorf("New-arrivals must not fetch orders, got %d fetches", api.orderFetches)
	}
}

// TestRunCohort_WritesDiscoveredCollectionRefOnce verifies a cohort with a
// collection title but no reference resolves it and writes it back once.
func TestRunCohort_WritesDiscoveredCollectionRefOnce(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	api.orders = []catalog.Order{sellingOrder(3, "A", 10)}
	refs := &fakeRefWriter{}
	eng := testEngine(api, refs)

	rule := Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10, CollectionTitle: "Bestsellers"}
	if _, err := eng.RunCohort(context.Background(), "t1", rule, ExclusionPolicy{}); err != nil {
		t.Fatalf("RunCohort failed: %v", err)
	}

	if len(api.created) != 1 || api.created[0] != "Bestsellers" {
		t.Errorf("Expected the collection to be created, got %v", api.created)
	}
	if len(refs.calls) != 1 || refs.calls[0] != "t1/bestsellers/col-Bestsellers" {
		t.Errorf("Expected one ref write-back, got %v", refs.calls)
	}

	// A rule that already carries a reference does not resolve again.
	rule.CollectionID = "col-Bestsellers"
	if _, err := eng.RunCohort(context.Background(), "t1", rule, ExclusionPolicy{}); err != nil {
		t.Fatalf("Second RunCohort failed: %v", err)
	}
	if len(refs.calls) != 1 {
		t.Errorf("Expected no further write-backs, got %v", refs.calls)
	}
}

// TestRunCohort_RefWriteFailureDoesNotAbort verifies a failed settings
// write-back is tolerated; tagging still converges.
func TestRunCohort_RefWriteFailureDoesNotAbort(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	api.orders = []catalog.Order{sellingOrder(3, "A", 10)}
	refs := &fakeRefWriter{err: errors.New("store unavailable")}
	eng := testEngine(api, refs)

	rule := Rule{Kind: KindBestsellers, Enabled: true, Tag: "bestseller", TargetCount: 10, CollectionTitle: "Bestsellers"}
	result, err := eng.RunCohort(context.Background(), "t1", rule, ExclusionPolicy{})
	if err != nil {
		t.Fatalf("RunCohort failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Expected StatusCompleted despite ref write failure, got %s", result.Status)
	}
}

// TestRunReorder_SubmitsComposedOrder verifies the happy path: moves are
// submitted and the job is driven to done.
func TestRunReorder_SubmitsComposedOrder(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{
		taggedProduct("A", 5),
		taggedProduct("B", 5),
	}
	api.jobDoneAfter = 2
	eng := testEngine(api, nil)

	result, err := eng.RunReorder(context.Background(), "t1", OrderingConfig{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("RunReorder failed: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Expected StatusCompleted, got %s (%s)", result.Status, result.Message)
	}
	if result.Moves != 2 {
		t.Errorf("Expected 2 moves, got %d", result.Moves)
	}
	if len(api.submitted) != 1 || len(api.submitted[0]) != 2 {
		t.Errorf("Expected one submission with 2 moves, got %v", api.submitted)
	}
}

// TestRunReorder_TimeoutIsSuccessWithCaveat verifies a job that outlives the
// poll budget reports StatusJobTimeout with a nil error.
func TestRunReorder_TimeoutIsSuccessWithCaveat(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	api.jobDoneAfter = 0
	eng := testEngine(api, nil)

	result, err := eng.RunReorder(context.Background(), "t1", OrderingConfig{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("Expected nil error on timeout, got: %v", err)
	}
	if result.Status != StatusJobTimeout {
		t.Errorf("Expected StatusJobTimeout, got %s", result.Status)
	}
	if !result.Success() {
		t.Error("Timed-out reorder still counts as a successful run")
	}
}

// TestRunReorder_EmptyCollection verifies an empty collection reports
// no-qualifying-items and submits nothing.
func TestRunReorder_EmptyCollection(t *testing.T) {
	api := newFakeAPI()
	eng := testEngine(api, nil)

	result, err := eng.RunReorder(context.Background(), "t1", OrderingConfig{CollectionID: "col-1"})
	if err != nil {
		t.Fatalf("RunReorder failed: %v", err)
	}
	if result.Status != StatusNoQualifyingItems {
		t.Errorf("Expected StatusNoQualifyingItems, got %s", result.Status)
	}
	if len(api.submitted) != 0 {
		t.Error("Empty collection must not submit an order")
	}
}

// TestRunReorder_RejectedSubmissionIsFatal verifies inline submission errors
// fail the run.
func TestRunReorder_RejectedSubmissionIsFatal(t *testing.T) {
	api := newFakeAPI()
	api.products = []catalog.Product{taggedProduct("A", 5)}
	api.submitErr = errors.New("userErrors: bad move list")
	eng := testEngine(api, nil)

	result, err := eng.RunReorder(context.Background(), "t1", OrderingConfig{CollectionID: "col-1"})
	if err == nil {
		t.Fatal("Expected submission error, got nil")
	}
	if result.Status != StatusFailed {
		t.Errorf("Expected StatusFailed, got %s", result.Status)
	}
}

// TestRunReorder_MissingCollectionIDIsInvalid verifies ordering requires a
// collection reference.
func TestRunReorder_MissingCollectionIDIsInvalid(t *testing.T) {
	api := newFakeAPI()
	eng := testEngine(api, nil)

	_, err := eng.RunReorder(context.Background(), "t1", OrderingConfig{})
	if !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("Expected ErrInvalidSettings, got: %v", err)
	}
}
