package concurrency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
)

// TaskInfo identifies a unit of work for logs, metrics and traces.
type TaskInfo struct {
	ID       string
	Name     string
	Pool     string
	Enqueued time.Time
}

func newTaskInfo(pool, name string) TaskInfo {
	if name == "" {
		name = "task"
	}
	return TaskInfo{
		ID:       uuid.NewString(),
		Name:     name,
		Pool:     pool,
		Enqueued: time.Now(),
	}
}

type taskInfoKey struct{}

// TaskInfoFromContext returns the info of the task whose context this is.
func TaskInfoFromContext(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}

func withTaskInfo(ctx context.Context, info TaskInfo) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, info)
}

// TaskFunc is an untyped unit of work
type TaskFunc func(ctx context.Context) error

// job is a queue entry. A worker either executes it or, on forced stop, abandons it;
// never both, never neither.
type job interface {
	Info() TaskInfo
	execute(ctx context.Context, obs Observer)
	abandon(err error)
}

// deferredTask binds a typed function to the promise its submitter waits on.
type deferredTask[T any] struct {
	info    TaskInfo
	fn      func(ctx context.Context) (T, error)
	promise *promise[T]
}

func newDeferredTask[T any](info TaskInfo, fn func(ctx context.Context) (T, error)) *deferredTask[T] {
	return &deferredTask[T]{
		info:    info,
		fn:      fn,
		promise: newPromise[T](info.ID),
	}
}

func (t *deferredTask[T]) Info() TaskInfo {
	return t.info
}

func (t *deferredTask[T]) execute(ctx context.Context, obs Observer) {
	ctx = withTaskInfo(ctx, t.info)
	ctx, finish := obs.TaskStarted(ctx, t.info)

	value, err := runGuarded(ctx, t.fn)
	finish(err)
	t.promise.resolve(Outcome[T]{Value: value, Err: err})
}

func (t *deferredTask[T]) abandon(err error) {
	t.promise.fail(err)
}

// postedTask is fire-and-forget work; failures only reach the log.
type postedTask struct {
	info   TaskInfo
	fn     func(ctx context.Context)
	logger Logger
}

func (t *postedTask) Info() TaskInfo {
	return t.info
}

func (t *postedTask) execute(ctx context.Context, obs Observer) {
	ctx = withTaskInfo(ctx, t.info)
	ctx, finish := obs.TaskStarted(ctx, t.info)

	_, err := runGuarded(ctx, func(ctx context.Context) (struct{}, error) {
		t.fn(ctx)
		return struct{}{}, nil
	})
	finish(err)
	if err != nil {
		t.logger.Errorf("posted task %s (%s) failed: %v", t.info.Name, t.info.ID, err)
	}
}

func (t *postedTask) abandon(err error) {
	t.logger.Debugf("posted task %s (%s) abandoned: %v", t.info.Name, t.info.ID, err)
}

// runGuarded calls fn and converts a panic into a *PanicError.
func runGuarded[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		value T
		err   error
		pc    panics.Catcher
	)
	pc.Try(func() {
		value, err = fn(ctx)
	})
	if r := pc.Recovered(); r != nil {
		var zero T
		return zero, newPanicError(r)
	}
	return value, err
}
