package catalog

import (
	"context"
	"fmt"
)

// PageFunc fetches one page of records after the given cursor. An empty
// cursor requests the first page.
type PageFunc[T any] func(ctx context.Context, pageSize int, cursor string) (Page[T], error)

// Paginator walks a cursor-paginated result set lazily. It is finite and
// non-restartable: once exhausted (or failed) it stays that way. Any page
// error aborts the whole sequence; callers must never act on a partial
// fetch.
type Paginator[T any] struct {
	fetch    PageFunc[T]
	pageSize int
	cursor   string
	started  bool
	done     bool
	err      error
}

// NewPaginator returns a paginator over fetch. Page sizes above MaxPageSize
// are clamped to the platform ceiling; non-positive sizes get the ceiling.
func NewPaginator[T any](fetch PageFunc[T], pageSize int) *Paginator[T] {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Paginator[T]{fetch: fetch, pageSize: pageSize}
}

// Next returns the next page of records. ok is false once the sequence is
// exhausted or a page has failed; after a failure Err reports the cause.
func (p *Paginator[T]) Next(ctx context.Context) (records []T, ok bool, err error) {
	if p.done {
		return nil, false, p.err
	}
	if p.started && p.cursor == "" {
		p.done = true
		return nil, false, nil
	}

	page, err := p.fetch(ctx, p.pageSize, p.cursor)
	if err != nil {
		p.done = true
		p.err = fmt.Errorf("fetch page after cursor %q: %w", p.cursor, err)
		return nil, false, p.err
	}
	p.started = true
	p.cursor = page.NextCursor
	if len(page.Records) == 0 && page.NextCursor == "" {
		p.done = true
		return nil, false, nil
	}
	return page.Records, true, nil
}

// All drains the remaining pages into one slice. No upper bound is assumed
// on the total record count.
func (p *Paginator[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for {
		records, ok, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, records...)
	}
}

// Err returns the error that terminated the sequence, if any.
func (p *Paginator[T]) Err() error {
	return p.err
}
