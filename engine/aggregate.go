package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/curatelab/shelfsort/catalog"
)

// SalesStat accumulates one product's activity inside the lookback window.
// Revenue uses decimal arithmetic; summing many small amounts must not
// drift by cents.
type SalesStat struct {
	UnitsSold  int
	Revenue    decimal.Decimal
	LastSoldAt time.Time
}

// SalesAggregate maps product ID to accumulated sales. Built fresh per
// invocation and never persisted.
type SalesAggregate map[string]*SalesStat

// NewSalesAggregate returns an empty aggregate.
func NewSalesAggregate() SalesAggregate {
	return make(SalesAggregate)
}

// Accumulate folds one order's line items in. Line items without a product
// reference are skipped; a deleted product must not fail the run.
func (a SalesAggregate) Accumulate(order catalog.Order) {
	for _, li := range order.LineItems {
		if li.ProductID == "" {
			continue
		}
		stat, ok := a[li.ProductID]
		if !ok {
			stat = &SalesStat{Revenue: decimal.Zero}
			a[li.ProductID] = stat
		}
		stat.UnitsSold += li.Quantity
		stat.Revenue = stat.Revenue.Add(li.Amount)
		if order.CreatedAt.After(stat.LastSoldAt) {
			stat.LastSoldAt = order.CreatedAt
		}
	}
}

// Merge folds another aggregate in. Accumulation is commutative and
// associative: aggregating two disjoint batches then merging equals
// aggregating their union directly.
func (a SalesAggregate) Merge(other SalesAggregate) {
	for id, s := range other {
		stat, ok := a[id]
		if !ok {
			a[id] = &SalesStat{
				UnitsSold:  s.UnitsSold,
				Revenue:    s.Revenue,
				LastSoldAt: s.LastSoldAt,
			}
			continue
		}
		stat.UnitsSold += s.UnitsSold
		stat.Revenue = stat.Revenue.Add(s.Revenue)
		if s.LastSoldAt.After(stat.LastSoldAt) {
			stat.LastSoldAt = s.LastSoldAt
		}
	}
}

// AggregateOrders builds a fresh aggregate from a windowed order set. An
// empty order set yields an empty map; callers treat that as "no
// qualifying activity", which is not an error.
func AggregateOrders(orders []catalog.Order) SalesAggregate {
	agg := NewSalesAggregate()
	for _, o := range orders {
		agg.Accumulate(o)
	}
	return agg
}
