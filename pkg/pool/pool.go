package pool

import (
	"context"
	"sync"
)

// WorkerFunc defines the function signature for a worker that processes an item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// MapFunc processes an item and produces a result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result pairs the output of a MapFunc with the index of its input item.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run executes a worker pool. It processes a slice of items concurrently.
// It returns a slice containing any errors that occurred during processing.
// numWorkers below one is treated as one.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	results := Map(ctx, items, numWorkers, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, workerFunc(ctx, item)
	})
	var allErrors []error
	for _, r := range results {
		if r.Err != nil {
			allErrors = append(allErrors, r.Err)
		}
	}
	return allErrors
}

// Map runs fn over items with numWorkers goroutines and returns the results of the items
// that were processed, ordered by input index. Items not yet started when ctx is
// cancelled are skipped.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	var wg sync.WaitGroup
	taskChan := make(chan int, numWorkers)
	done := make([]bool, len(items))
	results := make([]Result[R], len(items))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
					v, err := fn(ctx, items[idx])
					results[idx] = Result[R]{Index: idx, Value: v, Err: err}
					done[idx] = true
				}
			}
		}()
	}

OUT:
	for i := range items {
		select {
		case taskChan <- i:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	out := make([]Result[R], 0, len(items))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}
