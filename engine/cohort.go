package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/curatelab/shelfsort/catalog"
)

// Ranker produces a ranked, size-capped list of product IDs for one cohort.
// An empty result means no items qualified; the caller reports that as a
// distinct outcome, never as a silent success.
type Ranker interface {
	Rank(agg SalesAggregate, products []catalog.Product, rule Rule, now time.Time) []string
}

// RankerFor returns the strategy for a cohort kind.
func RankerFor(kind Kind) (Ranker, error) {
	switch kind {
	case KindBestsellers:
		return bestsellerRanker{}, nil
	case KindTrending:
		return trendingRanker{}, nil
	case KindNewArrivals:
		return newArrivalRanker{}, nil
	case KindAging:
		return agingRanker{}, nil
	}
	return nil, fmt.Errorf("no ranker for cohort kind %q", kind)
}

// capRanked truncates a ranked list to the rule's target count.
func capRanked(ids []string, target int) []string {
	if target > 0 && len(ids) > target {
		return ids[:target]
	}
	return ids
}

// bestsellerRanker orders items with any sales by units sold, descending.
// Ties break by product ID so identical inputs always produce identical
// output, independent of map iteration order.
type bestsellerRanker struct{}

func (bestsellerRanker) Rank(agg SalesAggregate, _ []catalog.Product, rule Rule, _ time.Time) []string {
	ids := make([]string, 0, len(agg))
	for id, stat := range agg {
		if stat.UnitsSold > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := agg[ids[i]], agg[ids[j]]
		if a.UnitsSold != b.UnitsSold {
			return a.UnitsSold > b.UnitsSold
		}
		return ids[i] < ids[j]
	})
	return capRanked(ids, rule.TargetCount)
}

// trendingRanker orders by recency first, volume second. Recency is
// bucketed at a fixed 12-hour granularity: items whose last sale falls in
// the same bucket are co-recent and compared by units sold. The composite
// key (bucket, -units, id) is a strict total order; no comparator cycles.
type trendingRanker struct{}

func (trendingRanker) Rank(agg SalesAggregate, _ []catalog.Product, rule Rule, _ time.Time) []string {
	ids := make([]string, 0, len(agg))
	for id, stat := range agg {
		if stat.UnitsSold > 0 {
			ids = append(ids, id)
		}
	}
	bucket := func(t time.Time) int64 {
		return t.Unix() / int64(trendingBucket/time.Second)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := agg[ids[i]], agg[ids[j]]
		ba, bb := bucket(a.LastSoldAt), bucket(b.LastSoldAt)
		if ba != bb {
			return ba > bb
		}
		if a.UnitsSold != b.UnitsSold {
			return a.UnitsSold > b.UnitsSold
		}
		return ids[i] < ids[j]
	})
	return capRanked(ids, rule.TargetCount)
}

// newArrivalRanker selects items created inside the configured window,
// newest first.
type newArrivalRanker struct{}

func (newArrivalRanker) Rank(_ SalesAggregate, products []catalog.Product, rule Rule, now time.Time) []string {
	cutoff := now.AddDate(0, 0, -rule.lookbackDays())
	var candidates []catalog.Product
	for _, p := range products {
		if !p.CreatedAt.Before(cutoff) {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		ids = append(ids, p.ID)
	}
	return capRanked(ids, rule.TargetCount)
}

// agingRanker selects items with zero sales in the lookback window, oldest
// first. "No sale in window" is the only predicate: an item that has never
// sold at all still qualifies.
type agingRanker struct{}

func (agingRanker) Rank(agg SalesAggregate, products []catalog.Product, rule Rule, _ time.Time) []string {
	sold := make(map[string]struct{}, len(agg))
	for id, stat := range agg {
		if stat.UnitsSold > 0 {
			sold[id] = struct{}{}
		}
	}
	var candidates []catalog.Product
	for _, p := range products {
		if _, ok := sold[p.ID]; !ok {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})
	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		ids = append(ids, p.ID)
	}
	return capRanked(ids, rule.TargetCount)
}
