package concurrent

import (
	"context"
	"sync"
)

// Pool bounds the number of goroutines doing expensive work at once.
// The ingestion pipeline uses one to keep chunk embedding from swamping a
// local model server.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool admitting at most workers concurrent calls.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Do runs fn once a worker slot is free, or returns early when ctx is done.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
		return fn()
	}
}

// Map applies fn to every item with bounded concurrency, preserving order.
// The first error wins; remaining work still drains before Map returns.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 4
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, val T) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[idx], errs[idx] = fn(ctx, val)
			}
		}(i, item)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
