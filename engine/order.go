package engine

import (
	"sort"
	"time"

	"github.com/curatelab/shelfsort/catalog"
)

// ComposeOrder merges featured pins, tag-position rules, and the behavior
// toggles into one total order for a collection. Every input product is
// placed exactly once, in the first tier it matches:
//
//  1. featured pins (up to the cap, in pin order)
//  2. after-featured tag rules
//  3. new items, when push-new-to-top is on
//  4. everything untagged that is not being pushed down
//  5. before-out-of-stock tag rules
//  6. out-of-stock items, when push-out-of-stock-down is on
//  7. bottom tag rules
//  8. failsafe for anything the tiers missed
//
// The output is a bijection on input IDs and deterministic for identical
// inputs.
func ComposeOrder(products []catalog.Product, cfg OrderingConfig, now time.Time) []catalog.Move {
	index := make(map[string]int, len(products)) // product ID -> catalog position
	for i, p := range products {
		index[p.ID] = i
	}

	// First matching tag rule wins; -1 means no rule applies.
	ruleIdx := make([]int, len(products))
	for i, p := range products {
		ruleIdx[i] = -1
		for ri, rule := range cfg.TagRules {
			if p.HasTag(rule.Tag) {
				ruleIdx[i] = ri
				break
			}
		}
	}

	placed := make([]bool, len(products))
	order := make([]string, 0, len(products))

	place := func(i int) {
		placed[i] = true
		order = append(order, products[i].ID)
	}

	// Tier 1: featured pins. IDs beyond the cap, or absent from the
	// collection, fall through as if never featured.
	for _, id := range cfg.Featured.Pinned() {
		if i, ok := index[id]; ok && !placed[i] {
			place(i)
		}
	}

	// placeByRule collects unplaced items assigned to rules with the given
	// bucket, ordered by rule declaration, then catalog order within a rule.
	placeByRule := func(bucket TagPositionBucket) {
		var picks []int
		for i := range products {
			if placed[i] || ruleIdx[i] < 0 {
				continue
			}
			if cfg.TagRules[ruleIdx[i]].Bucket == bucket {
				picks = append(picks, i)
			}
		}
		sort.Slice(picks, func(a, b int) bool {
			if ruleIdx[picks[a]] != ruleIdx[picks[b]] {
				return ruleIdx[picks[a]] < ruleIdx[picks[b]]
			}
			return picks[a] < picks[b]
		})
		for _, i := range picks {
			place(i)
		}
	}

	// Tier 2.
	placeByRule(BucketAfterFeatured)

	// Tier 3.
	if cfg.Behavior.PushNewToTop {
		cutoff := now.AddDate(0, 0, -cfg.Behavior.NewWindowDays)
		for i, p := range products {
			if !placed[i] && !p.CreatedAt.Before(cutoff) {
				place(i)
			}
		}
	}

	// Tier 4: the untagged middle. Out-of-stock items are held back for
	// tier 6 when the push-down flag is set; otherwise they stay in natural
	// order here.
	for i, p := range products {
		if placed[i] || ruleIdx[i] >= 0 {
			continue
		}
		if cfg.Behavior.PushOutOfStockDown && !p.InStock() {
			continue
		}
		place(i)
	}

	// Tier 5.
	placeByRule(BucketBeforeOutOfStock)

	// Tier 6.
	if cfg.Behavior.PushOutOfStockDown {
		for i, p := range products {
			if !placed[i] && ruleIdx[i] < 0 && !p.InStock() {
				place(i)
			}
		}
	}

	// Tier 7.
	placeByRule(BucketBottom)

	// Tier 8: must be empty when the tiers above are exhaustive; a leftover
	// indicates a classification bug, but the item is still appended so the
	// output stays a complete permutation.
	order = appendUnplaced(order, products, placed)

	moves := make([]catalog.Move, len(order))
	for pos, id := range order {
		moves[pos] = catalog.Move{ProductID: id, Position: pos}
	}
	return moves
}

// appendUnplaced appends every still-unplaced product in catalog order.
func appendUnplaced(order []string, products []catalog.Product, placed []bool) []string {
	for i, p := range products {
		if !placed[i] {
			placed[i] = true
			order = append(order, p.ID)
		}
	}
	return order
}
