package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curatelab/shelfsort/catalog"
)

var rankNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func stat(units int, lastSold time.Time) *SalesStat {
	return &SalesStat{UnitsSold: units, Revenue: decimal.Zero, LastSoldAt: lastSold}
}

func product(id string, createdAt time.Time) catalog.Product {
	return catalog.Product{ID: id, Title: id, CreatedAt: createdAt, TotalInventory: 10}
}

// TestBestsellers_OrdersByUnitsWithIDTiebreak verifies descending unit order
// with product ID breaking ties deterministically.
func TestBestsellers_OrdersByUnitsWithIDTiebreak(t *testing.T) {
	agg := SalesAggregate{
		"C": stat(5, rankNow),
		"B": stat(10, rankNow),
		"A": stat(10, rankNow),
	}

	ranker, err := RankerFor(KindBestsellers)
	if err != nil {
		t.Fatalf("RankerFor failed: %v", err)
	}
	got := ranker.Rank(agg, nil, Rule{Kind: KindBestsellers, TargetCount: 10}, rankNow)

	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// TestBestsellers_CapsAtTargetCount verifies the ranked list is truncated to
// the configured size.
func TestBestsellers_CapsAtTargetCount(t *testing.T) {
	agg := SalesAggregate{
		"A": stat(10, rankNow),
		"B": stat(10, rankNow),
		"C": stat(5, rankNow),
	}

	ranker, _ := RankerFor(KindBestsellers)
	got := ranker.Rank(agg, nil, Rule{Kind: KindBestsellers, TargetCount: 2}, rankNow)

	if len(got) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got))
	}
	if got[0] != "A" || got[1] != "B" {
		t.Errorf("Expected [A B], got %v", got)
	}
}

// TestBestsellers_ExcludesZeroSales verifies products with no units sold
// never rank, even when present in the aggregate.
func TestBestsellers_ExcludesZeroSales(t *testing.T) {
	agg := SalesAggregate{
		"A": stat(3, rankNow),
		"B": stat(0, rankNow),
	}

	ranker, _ := RankerFor(KindBestsellers)
	got := ranker.Rank(agg, nil, Rule{Kind: KindBestsellers, TargetCount: 10}, rankNow)

	if len(got) != 1 || got[0] != "A" {
		t.Errorf("Expected only A to rank, got %v", got)
	}
}

// TestTrending_SameBucketComparesByVolume verifies that within one recency
// bucket the higher-volume item wins.
func TestTrending_SameBucketComparesByVolume(t *testing.T) {
	base := rankNow.Truncate(24 * time.Hour)
	agg := SalesAggregate{
		"low":  stat(3, base.Add(2 * time.Hour)),
		"high": stat(7, base.Add(1 * time.Hour)),
	}

	ranker, _ := RankerFor(KindTrending)
	got := ranker.Rank(agg, nil, Rule{Kind: KindTrending, TargetCount: 10}, rankNow)

	if len(got) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got))
	}
	if got[0] != "high" || got[1] != "low" {
		t.Errorf("Expected [high low] within one bucket, got %v", got)
	}
}

// TestTrending_RecencyBucketBeatsVolume verifies an item sold in a newer
// bucket outranks a higher-volume item from an older bucket.
func TestTrending_RecencyBucketBeatsVolume(t *testing.T) {
	base := rankNow.Truncate(24 * time.Hour)
	agg := SalesAggregate{
		"recent": stat(1, base.Add(time.Hour)),
		"bulk":   stat(50, base.Add(-time.Hour)),
	}

	ranker, _ := RankerFor(KindTrending)
	got := ranker.Rank(agg, nil, Rule{Kind: KindTrending, TargetCount: 10}, rankNow)

	if got[0] != "recent" {
		t.Errorf("Expected recent sale to outrank volume across buckets, got %v", got)
	}
}

// TestNewArrivals_NewestFirstInsideWindow verifies window filtering and
// newest-first ordering.
func TestNewArrivals_NewestFirstInsideWindow(t *testing.T) {
	products := []catalog.Product{
		product("old", rankNow.AddDate(0, 0, -40)),
		product("newer", rankNow.AddDate(0, 0, -2)),
		product("newest", rankNow.AddDate(0, 0, -1)),
	}

	ranker, _ := RankerFor(KindNewArrivals)
	got := ranker.Rank(nil, products, Rule{Kind: KindNewArrivals, TargetCount: 10, WindowDays: 30}, rankNow)

	if len(got) != 2 {
		t.Fatalf("Expected 2 items inside the window, got %d: %v", len(got), got)
	}
	if got[0] != "newest" || got[1] != "newer" {
		t.Errorf("Expected [newest newer], got %v", got)
	}
}

// TestAging_OldestFirstAndNeverSoldIncluded verifies the aging predicate is
// "no sale inside the window": items with old sales and items that never
// sold both qualify, oldest catalog entry first.
func TestAging_OldestFirstAndNeverSoldIncluded(t *testing.T) {
	products := []catalog.Product{
		product("X", rankNow.AddDate(0, 0, -200)),
		product("Y", rankNow.AddDate(0, 0, -5)),
		product("sold", rankNow.AddDate(0, 0, -300)),
	}
	// Only "sold" had activity inside the window.
	agg := SalesAggregate{
		"sold": stat(2, rankNow.AddDate(0, 0, -3)),
	}

	ranker, _ := RankerFor(KindAging)
	got := ranker.Rank(agg, products, Rule{Kind: KindAging, TargetCount: 10, WindowDays: 90}, rankNow)

	if len(got) != 2 {
		t.Fatalf("Expected 2 aging items, got %d: %v", len(got), got)
	}
	if got[0] != "X" || got[1] != "Y" {
		t.Errorf("Expected [X Y] oldest first, got %v", got)
	}
}

// TestRankers_EmptyInputsRankNothing verifies every strategy returns an
// empty list on empty inputs so the caller can report no-qualifying-items.
func TestRankers_EmptyInputsRankNothing(t *testing.T) {
	for _, kind := range Kinds() {
		ranker, err := RankerFor(kind)
		if err != nil {
			t.Fatalf("RankerFor(%s) failed: %v", kind, err)
		}
		got := ranker.Rank(NewSalesAggregate(), nil, Rule{Kind: kind, TargetCount: 10, WindowDays: 30}, rankNow)
		if len(got) != 0 {
			t.Errorf("%s: expected empty ranking, got %v", kind, got)
		}
	}
}

// TestRankerFor_UnknownKind verifies the factory rejects unknown kinds.
func TestRankerFor_UnknownKind(t *testing.T) {
	if _, err := RankerFor(Kind("velocity")); err == nil {
		t.Error("Expected error for unknown cohort kind, got nil")
	}
}
