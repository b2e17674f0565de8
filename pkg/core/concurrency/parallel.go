package concurrency

import (
	"context"

	"go.uber.org/multierr"
)

// The helpers below submit one task per element and then join the futures in
// submission order. Every element always runs: a failure does not cancel its
// siblings. ParallelFor and ParallelForEach report the first failure in
// submission order (later results are discarded); the Collect variants return
// every per-element outcome instead.
//
// Elements are submitted with SubmitFuncContext, so on a pool with a bounded
// queue the submitting goroutine waits for room rather than having elements
// refused with ErrQueueFull. A nil executor means Global(). ctx bounds that wait
// and the join; tasks receive the pool's task context. If ctx ends while
// elements are still being submitted, the rest fail with ctx's error without
// running. Joining blocks the caller, so calling these from a task on
// the same pool can deadlock once every worker is joining.

// ParallelForEach calls fn once per item on exec.
func ParallelForEach[E any](ctx context.Context, exec Executor, items []E, fn func(ctx context.Context, item E) error) error {
	futures := submitEach(ctx, exec, items, fn)
	for i, f := range futures {
		if _, err := f.Await(ctx); err != nil {
			// Let the remaining tasks finish before reporting, unless the caller gave up.
			if ctx.Err() == nil {
				waitAll(futures[i+1:])
			}
			return &IndexError{Index: i, Err: err}
		}
	}
	return nil
}

// ParallelFor calls fn once for each index in [start, end) on exec.
func ParallelFor(ctx context.Context, exec Executor, start, end int, fn func(ctx context.Context, i int) error) error {
	if start >= end {
		return nil
	}
	return ParallelForEach(ctx, exec, indexRange(start, end), fn)
}

// ParallelForEachCollect is ParallelForEach that reports every element. The
// returned error combines all failures as *IndexError values (see multierr.Errors).
func ParallelForEachCollect[E any](ctx context.Context, exec Executor, items []E, fn func(ctx context.Context, item E) error) ([]Outcome[struct{}], error) {
	futures := submitEach(ctx, exec, items, fn)
	outcomes := make([]Outcome[struct{}], len(futures))

	var errs error
	for i, f := range futures {
		_, err := f.Await(ctx)
		outcomes[i] = Outcome[struct{}]{Err: err}
		if err != nil {
			errs = multierr.Append(errs, &IndexError{Index: i, Err: err})
		}
	}
	return outcomes, errs
}

// ParallelForCollect is ParallelFor that reports every index.
func ParallelForCollect(ctx context.Context, exec Executor, start, end int, fn func(ctx context.Context, i int) error) ([]Outcome[struct{}], error) {
	if start >= end {
		return nil, nil
	}
	return ParallelForEachCollect(ctx, exec, indexRange(start, end), fn)
}

// Map applies fn to every item on p and returns the results in input order, or the
// first error in input order once all tasks have finished.
func Map[E, R any](ctx context.Context, p *ThreadPool, items []E, fn func(ctx context.Context, item E) (R, error)) ([]R, error) {
	if p == nil {
		p = Global()
	}
	futures := make([]*Future[R], len(items))
	for i, item := range items {
		futures[i] = SubmitContext(ctx, p, func(ctx context.Context) (R, error) {
			return fn(ctx, item)
		})
	}

	results := make([]R, len(items))
	for i, f := range futures {
		v, err := f.Await(ctx)
		if err != nil {
			if ctx.Err() == nil {
				waitAll(futures[i+1:])
			}
			return nil, &IndexError{Index: i, Err: err}
		}
		results[i] = v
	}
	return results, nil
}

func submitEach[E any](ctx context.Context, exec Executor, items []E, fn func(ctx context.Context, item E) error) []*Future[struct{}] {
	if exec == nil {
		exec = Global()
	}
	futures := make([]*Future[struct{}], len(items))
	for i, item := range items {
		futures[i] = exec.SubmitFuncContext(ctx, func(ctx context.Context) error {
			return fn(ctx, item)
		})
	}
	return futures
}

func waitAll[T any](futures []*Future[T]) {
	for _, f := range futures {
		f.Wait()
	}
}

func indexRange(start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}
