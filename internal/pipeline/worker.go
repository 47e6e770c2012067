package pipeline

import (
	"context"
	"sync"
)

type itemResult[Out any] struct {
	out Out
	err error
	// started is false when cancellation stopped the item from ever
	// being picked up. Not-started is reported as not-processed, not as
	// a failure.
	started bool
}

// forEach runs fn over all items with at most `workers` goroutines.
// Output order matches input order regardless of completion order; each
// slot is written by exactly one worker. Cancellation stops new items
// from launching and lets in-flight calls finish or time out on their
// own.
func forEach[In any, Out any](
	ctx context.Context,
	items []In,
	workers int,
	fn func(ctx context.Context, idx int, item In) (Out, error),
) []itemResult[Out] {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	out := make([]itemResult[Out], len(items))

	type job struct {
		idx int
		in  In
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				res, err := fn(ctx, j.idx, j.in)
				out[j.idx] = itemResult[Out]{out: res, err: err, started: true}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return out
}
