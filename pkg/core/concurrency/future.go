package concurrency

import (
	"context"
	"sync"
)

// Outcome is the result of a task: either a value or the error it failed with.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Unwrap splits the outcome into Go's usual (value, error) pair.
func (o Outcome[T]) Unwrap() (T, error) {
	return o.Value, o.Err
}

// Future is the read side of a task result. It is resolved exactly once and may be
// awaited any number of times, from any goroutine.
type Future[T any] struct {
	id      string
	done    chan struct{}
	outcome Outcome[T]

	mu        sync.Mutex
	callbacks []func(Outcome[T])
}

// promise is the write side, owned by the task wrapper.
type promise[T any] struct {
	future *Future[T]
	once   sync.Once
}

func newPromise[T any](id string) *promise[T] {
	return &promise[T]{
		future: &Future[T]{
			id:   id,
			done: make(chan struct{}),
		},
	}
}

// resolve fulfils the promise. Only the first call has any effect.
func (p *promise[T]) resolve(o Outcome[T]) bool {
	resolved := false
	p.once.Do(func() {
		f := p.future
		f.mu.Lock()
		f.outcome = o
		close(f.done)
		callbacks := f.callbacks
		f.callbacks = nil
		f.mu.Unlock()

		for _, cb := range callbacks {
			cb(o)
		}
		resolved = true
	})
	return resolved
}

func (p *promise[T]) fail(err error) bool {
	return p.resolve(Outcome[T]{Err: err})
}

// FailedFuture returns a future that is already resolved with err.
func FailedFuture[T any](err error) *Future[T] {
	p := newPromise[T]("")
	p.fail(err)
	return p.future
}

// CompletedFuture returns a future that is already resolved with value.
func CompletedFuture[T any](value T) *Future[T] {
	p := newPromise[T]("")
	p.resolve(Outcome[T]{Value: value})
	return p.future
}

// ID returns the id of the task behind this future (empty for detached futures).
func (f *Future[T]) ID() string {
	return f.id
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved, without blocking.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future is resolved.
func (f *Future[T]) Wait() {
	<-f.done
}

// Get blocks until the future is resolved and returns its value or error.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.outcome.Value, f.outcome.Err
}

// Await is Get bounded by ctx. A cancelled ctx does not affect the task itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.outcome.Value, f.outcome.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Outcome returns the resolved outcome, or false if the future is still pending.
func (f *Future[T]) Outcome() (Outcome[T], bool) {
	if !f.IsDone() {
		return Outcome[T]{}, false
	}
	return f.outcome, true
}

// OnComplete registers fn to run once the future resolves. If it already has, fn
// runs immediately on the calling goroutine; otherwise it runs on the goroutine
// that resolves the future, so fn must not block.
func (f *Future[T]) OnComplete(fn func(Outcome[T])) *Future[T] {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.outcome)
	default:
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
	}
	return f
}

// Then derives a future holding fn applied to f's value. Failures pass through
// untouched and fn is not called.
func Then[T, R any](f *Future[T], fn func(T) (R, error)) *Future[R] {
	next := newPromise[R](f.id)
	f.OnComplete(func(o Outcome[T]) {
		if o.Err != nil {
			next.fail(o.Err)
			return
		}
		v, err := fn(o.Value)
		next.resolve(Outcome[R]{Value: v, Err: err})
	})
	return next.future
}

// All resolves with every value in order once all futures succeed, or with the
// first error in argument order.
func All[T any](futures ...*Future[T]) *Future[[]T] {
	all := newPromise[[]T]("")
	if len(futures) == 0 {
		all.resolve(Outcome[[]T]{Value: []T{}})
		return all.future
	}

	var (
		mu      sync.Mutex
		pending = len(futures)
	)
	for _, f := range futures {
		f.OnComplete(func(Outcome[T]) {
			mu.Lock()
			pending--
			last := pending == 0
			mu.Unlock()
			if !last {
				return
			}
			values := make([]T, 0, len(futures))
			for _, each := range futures {
				if each.outcome.Err != nil {
					all.fail(each.outcome.Err)
					return
				}
				values = append(values, each.outcome.Value)
			}
			all.resolve(Outcome[[]T]{Value: values})
		})
	}
	return all.future
}
