package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockClient is an offline, deterministic API implementation for demos and
// tests. It synthesizes a small catalog with recent sales activity, keeps
// tag patches and move submissions in memory, and completes reorder jobs
// after a couple of polls. No network calls.
type MockClient struct {
	mu       sync.Mutex
	now      time.Time
	products []Product
	orders   []Order
	colls    map[string]string // title -> id
	jobPolls map[JobRef]int
	nextColl int
	nextJob  int
}

// MockClientOptions seeds the synthetic data. A zero Seed uses a fixed
// default so demos are reproducible run to run.
type MockClientOptions struct {
	Seed     int64
	Products int
	Orders   int
	Now      time.Time
}

// NewMockClient builds a client with a synthetic catalog and order history.
func NewMockClient(opts MockClientOptions) *MockClient {
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	nProducts := opts.Products
	if nProducts <= 0 {
		nProducts = 40
	}
	nOrders := opts.Orders
	if nOrders <= 0 {
		nOrders = 120
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	r := rand.New(rand.NewSource(seed))

	m := &MockClient{
		now:      now,
		colls:    make(map[string]string),
		jobPolls: make(map[JobRef]int),
	}

	for i := 0; i < nProducts; i++ {
		ageDays := r.Intn(400)
		m.products = append(m.products, Product{
			ID:             fmt.Sprintf("prod-%04d", i+1),
			Title:          fmt.Sprintf("Synthetic product %d", i+1),
			Tags:           nil,
			TotalInventory: r.Intn(25), // some land on zero
			CreatedAt:      now.AddDate(0, 0, -ageDays),
			Position:       i,
		})
	}

	for i := 0; i < nOrders; i++ {
		ageHours := r.Intn(200 * 24)
		order := Order{
			ID:        fmt.Sprintf("order-%05d", i+1),
			CreatedAt: now.Add(-time.Duration(ageHours) * time.Hour),
		}
		lines := 1 + r.Intn(3)
		for l := 0; l < lines; l++ {
			p := m.products[r.Intn(len(m.products))]
			qty := 1 + r.Intn(4)
			unit := decimal.NewFromInt(int64(500 + r.Intn(4500))).Div(decimal.NewFromInt(100))
			order.LineItems = append(order.LineItems, LineItem{
				ProductID: p.ID,
				Quantity:  qty,
				Amount:    unit.Mul(decimal.NewFromInt(int64(qty))),
			})
		}
		m.orders = append(m.orders, order)
	}

	return m
}

func (m *MockClient) SearchOrders(ctx context.Context, since time.Time, pageSize int, cursor string) (Page[Order], error) {
	if err := ctx.Err(); err != nil {
		return Page[Order]{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matching []Order
	for _, o := range m.orders {
		if !o.CreatedAt.Before(since) {
			matching = append(matching, o)
		}
	}
	return slicePage(matching, pageSize, cursor)
}

func (m *MockClient) SearchProducts(ctx context.Context, pageSize int, cursor string) (Page[Product], error) {
	if err := ctx.Err(); err != nil {
		return Page[Product]{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slicePage(m.products, pageSize, cursor)
}

func (m *MockClient) CollectionProducts(ctx context.Context, collectionID string, pageSize int, cursor string) (Page[Product], error) {
	// The mock keeps a single flat catalog; every collection sees all of it.
	return m.SearchProducts(ctx, pageSize, cursor)
}

func (m *MockClient) UpdateProductTags(ctx context.Context, productID string, tags []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == productID {
			m.products[i].Tags = NormalizeTags(tags)
			return nil
		}
	}
	return fmt.Errorf("product %s not found", productID)
}

func (m *MockClient) SetCollectionOrder(ctx context.Context, collectionID string, moves []Move) (JobRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJob++
	ref := JobRef("job-" + strconv.Itoa(m.nextJob))
	m.jobPolls[ref] = 0
	return ref, nil
}

func (m *MockClient) JobDone(ctx context.Context, ref JobRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	polls, ok := m.jobPolls[ref]
	if !ok {
		return false, fmt.Errorf("unknown job %s", ref)
	}
	m.jobPolls[ref] = polls + 1
	return polls >= 2, nil
}

func (m *MockClient) FindCollectionByTitle(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colls[title], nil
}

func (m *MockClient) CreateCollection(ctx context.Context, title string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.colls[title]; ok {
		return id, nil
	}
	m.nextColl++
	id := "coll-" + strconv.Itoa(m.nextColl)
	m.colls[title] = id
	return id, nil
}

// slicePage cuts one page out of a materialized slice, using the numeric
// offset as the cursor.
func slicePage[T any](all []T, pageSize int, cursor string) (Page[T], error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page[T]{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		start = n
	}
	if start >= len(all) {
		return Page[T]{}, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	page := Page[T]{Records: append([]T(nil), all[start:end]...)}
	if end < len(all) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
