package concurrency

import (
	"context"
	"time"
)

// PoolStats provides statistics about pool activity
type PoolStats struct {
	Workers          int           // Number of worker goroutines
	QueuedTasks      int           // Tasks waiting for a worker
	ActiveTasks      int64         // Tasks currently executing
	SubmittedTasks   int64         // Total accepted submissions
	CompletedTasks   int64         // Total tasks that ran to completion (including failures)
	FailedTasks      int64         // Completed tasks that returned an error or panicked
	PanickedTasks    int64         // Subset of FailedTasks that panicked
	RejectedTasks    int64         // Submissions refused (shutdown, full queue, nil task)
	AbandonedTasks   int64         // Queued tasks dropped by a forced stop
	BusyTime         time.Duration // Cumulative time spent executing tasks
	QueueCapacity    int           // Maximum queue size, 0 when unbounded
	QueueUtilization float64       // Queue utilization percentage, 0 when unbounded
	State            State
}

// Executor is the part of a ThreadPool that subsystems depend on. Pass one in
// rather than reaching for Global so that tests can supply an isolated pool.
type Executor interface {
	// SubmitFunc queues a task and returns a future for its error
	SubmitFunc(fn TaskFunc) *Future[struct{}]

	// SubmitFuncContext is SubmitFunc that waits for room in a bounded queue
	// until ctx ends
	SubmitFuncContext(ctx context.Context, fn TaskFunc) *Future[struct{}]

	// Post queues fire-and-forget work
	// Returns ErrPoolShutdown or ErrQueueFull if the task is not accepted
	Post(fn func(ctx context.Context)) error

	// Shutdown drains queued work for up to timeout, then force-stops
	Shutdown(timeout time.Duration) error

	// Stop abandons queued work and waits for running tasks
	Stop()

	// IsRunning reports whether new work is accepted
	IsRunning() bool

	// Size returns the number of workers
	Size() int

	// Stats returns current pool statistics
	Stats() PoolStats
}

var _ Executor = (*ThreadPool)(nil)
