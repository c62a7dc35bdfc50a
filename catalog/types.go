// Package catalog defines the typed records exchanged with the external
// catalog platform and the narrow client interfaces the engine consumes.
//
// The platform's API speaks loosely-typed JSON; everything crossing the
// boundary is validated and normalized here, at fetch time, so business
// logic never touches raw payloads.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxPageSize is the hard ceiling the platform enforces on any paged request.
const MaxPageSize = 250

// Product is a catalog entry. The engine never creates or deletes products;
// it only patches their tag set and submits position moves.
type Product struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Tags           []string  `json:"tags"`
	TotalInventory int       `json:"total_inventory"`
	CreatedAt      time.Time `json:"created_at"`
	Position       int       `json:"position"`
}

// HasTag reports whether the product currently bears the given tag.
// Tag comparison is exact; the platform treats tags as case-sensitive.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the product bears at least one of the given tags.
func (p Product) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if p.HasTag(t) {
			return true
		}
	}
	return false
}

// InStock reports whether any sellable inventory remains.
func (p Product) InStock() bool {
	return p.TotalInventory > 0
}

// LineItem is a single order line referencing a product. ProductID may be
// empty when the product has since been deleted; aggregation skips such
// lines rather than failing the run.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

// Order is a transaction record with zero or more line items.
type Order struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	LineItems []LineItem `json:"line_items"`
}

// Move assigns a product an explicit 0-indexed position within a collection.
type Move struct {
	ProductID string `json:"product_id"`
	Position  int    `json:"position"`
}

// JobRef is an opaque handle to an asynchronous reorder job.
type JobRef string

// Page is one page of a cursor-paginated result set. An empty NextCursor
// means the sequence is exhausted.
type Page[T any] struct {
	Records    []T
	NextCursor string
}

// OrderSource retrieves orders created at or after a point in time.
type OrderSource interface {
	SearchOrders(ctx context.Context, since time.Time, pageSize int, cursor string) (Page[Order], error)
}

// ProductSource retrieves the catalog snapshot and collection membership.
type ProductSource interface {
	SearchProducts(ctx context.Context, pageSize int, cursor string) (Page[Product], error)
	CollectionProducts(ctx context.Context, collectionID string, pageSize int, cursor string) (Page[Product], error)
}

// TagPatcher replaces a product's full tag set.
type TagPatcher interface {
	UpdateProductTags(ctx context.Context, productID string, tags []string) error
}

// CollectionReorderer submits an explicit total order for a collection.
// Inline validation errors come back as a non-nil error; acceptance returns
// a job reference to poll.
type CollectionReorderer interface {
	SetCollectionOrder(ctx context.Context, collectionID string, moves []Move) (JobRef, error)
}

// JobPoller checks completion of an asynchronous reorder job.
type JobPoller interface {
	JobDone(ctx context.Context, ref JobRef) (bool, error)
}

// CollectionFinder resolves and creates collections by title.
type CollectionFinder interface {
	// FindCollectionByTitle returns the collection ID, or "" when no
	// collection with that title exists.
	FindCollectionByTitle(ctx context.Context, title string) (string, error)
	CreateCollection(ctx context.Context, title string) (string, error)
}

// API is the full client handle handed to the engine. Authentication and
// session establishment happen before construction; the engine assumes an
// authorized client.
type API interface {
	OrderSource
	ProductSource
	TagPatcher
	CollectionReorderer
	JobPoller
	CollectionFinder
}

// NormalizeTags trims whitespace and drops empty or duplicate entries while
// preserving first-seen order.
func NormalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
