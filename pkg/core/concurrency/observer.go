package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Observer receives task lifecycle events. Implementations must be safe for
// concurrent use and must not block: they run on submitting goroutines and workers.
type Observer interface {
	// TaskSubmitted is called once a task is accepted into the queue
	TaskSubmitted(info TaskInfo)

	// TaskRejected is called when a submission is refused (shutdown or full queue)
	TaskRejected(info TaskInfo, err error)

	// TaskStarted is called on the worker right before the task body runs.
	// The returned context is handed to the task; finish is called with the
	// task's error once the body returns.
	TaskStarted(ctx context.Context, info TaskInfo) (context.Context, func(err error))

	// TaskAbandoned is called for queued tasks dropped by a forced stop
	TaskAbandoned(info TaskInfo)
}

// NopObserver ignores every event. Embed it to implement only some hooks.
type NopObserver struct{}

func (NopObserver) TaskSubmitted(TaskInfo)       {}
func (NopObserver) TaskRejected(TaskInfo, error) {}
func (NopObserver) TaskAbandoned(TaskInfo)       {}

func (NopObserver) TaskStarted(ctx context.Context, _ TaskInfo) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// observers fans events out in registration order.
type observers []Observer

func (o observers) TaskSubmitted(info TaskInfo) {
	for _, obs := range o {
		obs.TaskSubmitted(info)
	}
}

func (o observers) TaskRejected(info TaskInfo, err error) {
	for _, obs := range o {
		obs.TaskRejected(info, err)
	}
}

func (o observers) TaskAbandoned(info TaskInfo) {
	for _, obs := range o {
		obs.TaskAbandoned(info)
	}
}

func (o observers) TaskStarted(ctx context.Context, info TaskInfo) (context.Context, func(error)) {
	finishers := make([]func(error), 0, len(o))
	for _, obs := range o {
		var finish func(error)
		ctx, finish = obs.TaskStarted(ctx, info)
		finishers = append(finishers, finish)
	}
	return ctx, func(err error) {
		for i := len(finishers) - 1; i >= 0; i-- {
			finishers[i](err)
		}
	}
}

// statsObserver backs ThreadPool.Stats
type statsObserver struct {
	submitted int64
	completed int64
	failed    int64
	panicked  int64
	rejected  int64
	abandoned int64
	active    int64
	busyNanos int64
}

func (s *statsObserver) TaskSubmitted(TaskInfo) {
	atomic.AddInt64(&s.submitted, 1)
}

func (s *statsObserver) TaskRejected(TaskInfo, error) {
	atomic.AddInt64(&s.rejected, 1)
}

func (s *statsObserver) TaskAbandoned(TaskInfo) {
	atomic.AddInt64(&s.abandoned, 1)
}

func (s *statsObserver) TaskStarted(ctx context.Context, _ TaskInfo) (context.Context, func(error)) {
	atomic.AddInt64(&s.active, 1)
	start := time.Now()
	return ctx, func(err error) {
		atomic.AddInt64(&s.busyNanos, int64(time.Since(start)))
		atomic.AddInt64(&s.active, -1)
		atomic.AddInt64(&s.completed, 1)
		if err != nil {
			atomic.AddInt64(&s.failed, 1)
			var pe *PanicError
			if errors.As(err, &pe) {
				atomic.AddInt64(&s.panicked, 1)
			}
		}
	}
}
