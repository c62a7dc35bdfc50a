package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RESTClient implements API against a JSON admin API.
//
// Expected endpoints:
//
//	GET  {base}/api/orders?since=RFC3339&limit=N&cursor=C
//	GET  {base}/api/products?limit=N&cursor=C
//	GET  {base}/api/collections/{id}/products?limit=N&cursor=C
//	PUT  {base}/api/products/{id}/tags
//	POST {base}/api/collections/{id}/order
//	GET  {base}/api/jobs/{id}
//	GET  {base}/api/collections?title=T
//	POST {base}/api/collections
//
// Payload fields arrive loosely typed (string timestamps, string money);
// everything is parsed and validated here before a record escapes this
// package.
type RESTClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// RESTClientOptions configures a RESTClient. Timeout applies per request.
type RESTClientOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewRESTClient validates options and returns a ready client.
func NewRESTClient(opts RESTClientOptions) (*RESTClient, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	to := opts.Timeout
	if to <= 0 {
		to = 20 * time.Second
	}
	return &RESTClient{
		baseURL: strings.TrimRight(base, "/"),
		token:   strings.TrimSpace(opts.Token),
		client:  &http.Client{Timeout: to},
	}, nil
}

// Wire DTOs. Timestamps are RFC3339 strings, money is a decimal string.

type wireLineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Amount    string `json:"amount"`
}

type wireOrder struct {
	ID        string         `json:"id"`
	CreatedAt string         `json:"created_at"`
	LineItems []wireLineItem `json:"line_items"`
}

type wireProduct struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Tags           []string `json:"tags"`
	TotalInventory int      `json:"total_inventory"`
	CreatedAt      string   `json:"created_at"`
	Position       int      `json:"position"`
}

type wireUserError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (o wireOrder) toOrder() (Order, error) {
	if strings.TrimSpace(o.ID) == "" {
		return Order{}, errors.New("order payload missing id")
	}
	createdAt, err := time.Parse(time.RFC3339, o.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("order %s created_at: %w", o.ID, err)
	}
	items := make([]LineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		amount := decimal.Zero
		if s := strings.TrimSpace(li.Amount); s != "" {
			amount, err = decimal.NewFromString(s)
			if err != nil {
				return Order{}, fmt.Errorf("order %s line amount %q: %w", o.ID, li.Amount, err)
			}
		}
		items = append(items, LineItem{
			ProductID: strings.TrimSpace(li.ProductID),
			Quantity:  li.Quantity,
			Amount:    amount,
		})
	}
	return Order{ID: o.ID, CreatedAt: createdAt, LineItems: items}, nil
}

func (p wireProduct) toProduct() (Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Product{}, errors.New("product payload missing id")
	}
	createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("product %s created_at: %w", p.ID, err)
	}
	return Product{
		ID:             p.ID,
		Title:          strings.TrimSpace(p.Title),
		Tags:           NormalizeTags(p.Tags),
		TotalInventory: p.TotalInventory,
		CreatedAt:      createdAt,
		Position:       p.Position,
	}, nil
}

// SearchOrders returns one page of orders created at or after since.
func (c *RESTClient) SearchOrders(ctx context.Context, since time.Time, pageSize int, cursor string) (Page[Order], error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var payload struct {
		Orders     []wireOrder `json:"orders"`
		NextCursor string      `json:"next_cursor"`
	}
	if err := c.get(ctx, "/api/orders?"+q.Encode(), &payload); err != nil {
		return Page[Order]{}, err
	}

	records := make([]Order, 0, len(payload.Orders))
	for _, wo := range payload.Orders {
		o, err := wo.toOrder()
		if err != nil {
			return Page[Order]{}, err
		}
		records = append(records, o)
	}
	return Page[Order]{Records: records, NextCursor: payload.NextCursor}, nil
}

// SearchProducts returns one page of the full catalog snapshot.
func (c *RESTClient) SearchProducts(ctx context.Context, pageSize int, cursor string) (Page[Product], error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return c.productPage(ctx, "/api/products?"+q.Encode())
}

// CollectionProducts returns one page of a collection's members in the
// platform's current order.
func (c *RESTClient) CollectionProducts(ctx context.Context, collectionID string, pageSize int, cursor string) (Page[Product], error) {
	if strings.TrimSpace(collectionID) == "" {
		return Page[Product]{}, errors.New("collection id is required")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/api/collections/" + url.PathEscape(collectionID) + "/products?" + q.Encode()
	return c.productPage(ctx, path)
}

func (c *RESTClient) productPage(ctx context.Context, path string) (Page[Product], error) {
	var payload struct {
		Products   []wireProduct `json:"products"`
		NextCursor string        `json:"next_cursor"`
	}
	if err := c.get(ctx, path, &payload); err != nil {
		return Page[Product]{}, err
	}
	records := make([]Product, 0, len(payload.Products))
	for _, wp := range payload.Products {
		p, err := wp.toProduct()
		if err != nil {
			return Page[Product]{}, err
		}
		records = append(records, p)
	}
	return Page[Product]{Records: records, NextCursor: payload.NextCursor}, nil
}

// UpdateProductTags replaces the product's full tag set.
func (c *RESTClient) UpdateProductTags(ctx context.Context, productID string, tags []string) error {
	if strings.TrimSpace(productID) == "" {
		return errors.New("product id is required")
	}
	body := map[string]any{"tags": NormalizeTags(tags)}
	var payload struct {
		Errors []wireUserError `json:"errors"`
	}
	path := "/api/products/" + url.PathEscape(productID) + "/tags"
	if err := c.do(ctx, http.MethodPut, path, body, &payload); err != nil {
		return err
	}
	return userErrorsToError("update tags", payload.Errors)
}

// SetCollectionOrder submits the full move list. Inline validation errors
// come back as an error; acceptance yields a job reference.
func (c *RESTClient) SetCollectionOrder(ctx context.Context, collectionID string, moves []Move) (JobRef, error) {
	if strings.TrimSpace(collectionID) == "" {
		return "", errors.New("collection id is required")
	}
	body := map[string]any{"moves": moves}
	var payload struct {
		JobID  string          `json:"job_id"`
		Errors []wireUserError `json:"errors"`
	}
	path := "/api/collections/" + url.PathEscape(collectionID) + "/order"
	if err := c.do(ctx, http.MethodPost, path, body, &payload); err != nil {
		return "", err
	}
	if err := userErrorsToError("set collection order", payload.Errors); err != nil {
		return "", err
	}
	if payload.JobID == "" {
		return "", errors.New("set collection order: response carried neither job id nor errors")
	}
	return JobRef(payload.JobID), nil
}

// JobDone reports whether the referenced job has completed.
func (c *RESTClient) JobDone(ctx context.Context, ref JobRef) (bool, error) {
	if ref == "" {
		return false, errors.New("job reference is required")
	}
	var payload struct {
		Done bool `json:"done"`
	}
	if err := c.get(ctx, "/api/jobs/"+url.PathEscape(string(ref)), &payload); err != nil {
		return false, err
	}
	return payload.Done, nil
}

// FindCollectionByTitle returns the ID of the collection with the exact
// title, or "" when none exists.
func (c *RESTClient) FindCollectionByTitle(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("collection title is required")
	}
	q := url.Values{}
	q.Set("title", title)
	var payload struct {
		Collections []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"collections"`
	}
	if err := c.get(ctx, "/api/collections?"+q.Encode(), &payload); err != nil {
		return "", err
	}
	for _, col := range payload.Collections {
		if col.Title == title {
			return col.ID, nil
		}
	}
	return "", nil
}

// CreateCollection creates an empty manually-sorted collection.
func (c *RESTClient) CreateCollection(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.New("collection title is required")
	}
	body := map[string]any{"title": title, "sort_order": "manual"}
	var payload struct {
		Collection struct {
			ID string `json:"id"`
		} `json:"collection"`
		Errors []wireUserError `json:"errors"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/collections", body, &payload); err != nil {
		return "", err
	}
	if err := userErrorsToError("create collection", payload.Errors); err != nil {
		return "", err
	}
	if payload.Collection.ID == "" {
		return "", errors.New("create collection: response missing collection id")
	}
	return payload.Collection.ID, nil
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Access-Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: http status %d", method, path, resp.StatusCode)
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func userErrorsToError(op string, errs []wireUserError) error {
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Field != "" {
			parts = append(parts, e.Field+": "+e.Message)
			continue
		}
		parts = append(parts, e.Message)
	}
	return fmt.Errorf("%s: %s", op, strings.Join(parts, "; "))
}
