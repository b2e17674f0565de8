package concurrency

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// MpscQueue hands items from any number of producer goroutines to one logical
// consumer. Items from a single producer come out in the order that producer
// pushed them; the interleaving across producers is unspecified. Every pushed item
// is delivered by exactly one TryPop, Pop, PopContext or Drain call.
//
// The queue is unbounded unless created WithCapacity. Closing it rejects further
// pushes and wakes waiting consumers; items already queued stay retrievable.
type MpscQueue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *queue.Queue // of T
	capacity int
	closed   bool
}

// QueueOption configures an MpscQueue
type QueueOption func(*queueOptions)

type queueOptions struct {
	capacity int
}

// WithCapacity bounds the queue; Push on a full queue returns ErrMailboxFull.
func WithCapacity(n int) QueueOption {
	return func(o *queueOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// NewMpscQueue creates an empty queue
func NewMpscQueue[T any](opts ...QueueOption) *MpscQueue[T] {
	var o queueOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := &MpscQueue[T]{
		items:    queue.New(),
		capacity: o.capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item and wakes a waiting consumer. It never blocks beyond the lock.
func (q *MpscQueue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrMailboxClosed
	}
	if q.capacity > 0 && q.items.Length() >= q.capacity {
		q.mu.Unlock()
		return ErrMailboxFull
	}
	q.items.Add(item)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// TryPop removes the oldest item without blocking
func (q *MpscQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Pop waits up to timeout for an item. It returns false on timeout, or
// immediately once the queue is closed and empty.
func (q *MpscQueue[T]) Pop(timeout time.Duration) (T, bool) {
	if timeout <= 0 {
		return q.TryPop()
	}

	// The deadline is fixed before the timer so that a wake-up from the timer
	// always observes an expired deadline.
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(time.Until(deadline), q.wakeAll)
	defer timer.Stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 && !q.closed {
		if !time.Now().Before(deadline) {
			var zero T
			return zero, false
		}
		q.cond.Wait()
	}
	return q.popLocked()
}

// PopContext waits until an item arrives, ctx is done, or the queue is closed
// and empty (ErrMailboxClosed).
func (q *MpscQueue[T]) PopContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, q.wakeAll)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Length() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.cond.Wait()
	}
	if item, ok := q.popLocked(); ok {
		return item, nil
	}
	var zero T
	return zero, ErrMailboxClosed
}

// Drain removes and returns every queued item in FIFO order.
func (q *MpscQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.items.Length())
	for q.items.Length() > 0 {
		out = append(out, itemOf[T](q.items.Remove()))
	}
	return out
}

// Len returns the number of queued items
func (q *MpscQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap returns the capacity, 0 when unbounded
func (q *MpscQueue[T]) Cap() int {
	return q.capacity
}

// Close rejects further pushes and wakes every waiting consumer
func (q *MpscQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// IsClosed reports whether Close has been called
func (q *MpscQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *MpscQueue[T]) popLocked() (T, bool) {
	if q.items.Length() == 0 {
		var zero T
		return zero, false
	}
	return itemOf[T](q.items.Remove()), true
}

func (q *MpscQueue[T]) wakeAll() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// itemOf converts a stored element back to T; a nil interface value becomes T's zero.
func itemOf[T any](v interface{}) T {
	item, _ := v.(T)
	return item
}
