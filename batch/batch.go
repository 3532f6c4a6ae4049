// Package batch provides the concurrency primitive of the research
// pipeline: an order-preserving executor that runs independent work items
// under a shared concurrency ceiling. No other pipeline package starts
// worker goroutines.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/deepresearch/core"
)

// Result holds the outcome of one work item. Exactly one of Value/Err is
// meaningful; a non-nil Err leaves Value at its zero value.
type Result[T any] struct {
	Value T
	Err   error
}

// Run executes worker for every item with at most limit invocations in
// flight. Scheduling is greedy: the next pending item starts as soon as a
// slot frees. The returned slice has len(items) entries and result[i] always
// corresponds to items[i] regardless of completion order.
//
// A failing worker only marks its own slot with the error; siblings keep
// running and Run returns once every item has produced a value or an error.
// Context cancellation stops admission of new items; their slots report
// ctx.Err().
func Run[In, Out any](ctx context.Context, items []In, limit int, worker func(ctx context.Context, item In) (Out, error)) ([]Result[Out], error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: concurrency limit must be >= 1, got %d", core.ErrInvalidConfiguration, limit)
	}

	results := make([]Result[Out], len(items))
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting for a slot; mark this and all
			// remaining items instead of blocking forever.
			for j := i; j < len(items); j++ {
				results[j].Err = err
			}
			break
		}

		wg.Add(1)
		go func(i int, item In) {
			defer wg.Done()
			defer sem.Release(1)
			results[i].Value, results[i].Err = worker(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return results, nil
}

// Values collects the successful values from a result slice, preserving
// input order and skipping failed slots.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// Errors collects the non-nil errors from a result slice.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
