package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/failfast"
)

// State is the lifecycle phase of a ThreadPool.
type State int32

const (
	StateConstructed State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// noCopy makes `go vet` flag accidental copies of a ThreadPool.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ThreadPool is a fixed set of worker goroutines fed from one shared queue.
//
// A ThreadPool owns its workers for its whole lifetime and is only ever handled
// through a pointer; it must not be copied. Once Shutdown or Stop begins the pool
// never runs new submissions again.
type ThreadPool struct {
	noCopy noCopy

	cfg     Config
	logger  Logger
	parent  context.Context
	extra   observers
	stats   *statsObserver
	running atomic.Bool
	state   atomic.Int32
	pool    *workerPool
}

// Option customises a ThreadPool at construction.
type Option func(*ThreadPool)

// WithLogger replaces the default logrus-backed logger.
func WithLogger(logger Logger) Option {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver adds an observer; observers are called in the order added.
func WithObserver(obs Observer) Option {
	return func(p *ThreadPool) {
		if obs != nil {
			p.extra = append(p.extra, obs)
		}
	}
}

// WithBaseContext sets the parent of every task context. Cancelling it does not
// stop the pool; it only signals running tasks.
func WithBaseContext(ctx context.Context) Option {
	return func(p *ThreadPool) {
		if ctx != nil {
			p.parent = ctx
		}
	}
}

// New starts a pool described by cfg. Invalid configuration is reported before any
// goroutine starts, so a failed New leaves nothing behind.
func New(cfg Config, opts ...Option) (*ThreadPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thread pool config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	p := &ThreadPool{
		cfg:    cfg,
		parent: context.Background(),
		stats:  &statsObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = newDefaultLogger(cfg.Name)
	}

	obs := append(observers{p.stats}, p.extra...)
	p.pool = newWorkerPool(p.parent, cfg.workers(), cfg.MaxQueueSize, obs)
	p.state.Store(int32(StateConstructed))
	p.pool.start()
	p.running.Store(true)
	p.state.Store(int32(StateRunning))

	p.logger.Debugf("thread pool %s started with %d workers", cfg.Name, p.pool.size)
	return p, nil
}

// NewWithThreads starts a pool with the given worker count (0 = runtime.NumCPU()).
func NewWithThreads(threads int, opts ...Option) (*ThreadPool, error) {
	return New(ThreadsConfig(threads), opts...)
}

// MustNew is New for wiring code where a bad config is a programming error.
func MustNew(cfg Config, opts ...Option) *ThreadPool {
	p, err := New(cfg, opts...)
	failfast.Err(err)
	return p
}

// Name returns the configured pool name
func (p *ThreadPool) Name() string {
	return p.cfg.Name
}

// Config returns the configuration the pool was built with
func (p *ThreadPool) Config() Config {
	return p.cfg
}

// Size returns the number of worker goroutines
func (p *ThreadPool) Size() int {
	return p.pool.size
}

// IsRunning reports whether the pool still accepts work
func (p *ThreadPool) IsRunning() bool {
	return p.running.Load()
}

// State returns the current lifecycle phase
func (p *ThreadPool) State() State {
	return State(p.state.Load())
}

// Terminated is closed once every worker goroutine has exited. After a Shutdown
// that timed out, workers stuck in long tasks exit only when those tasks return.
func (p *ThreadPool) Terminated() <-chan struct{} {
	return p.pool.exited
}

// Submit queues fn and returns a future for its result without blocking. If the
// pool is shutting down, or its bounded queue is full, the returned future has
// already failed with ErrPoolShutdown or ErrQueueFull.
func Submit[T any](p *ThreadPool, fn func(ctx context.Context) (T, error)) *Future[T] {
	return SubmitNamed(p, "", fn)
}

// SubmitNamed is Submit with a task name used in logs, metrics and traces.
func SubmitNamed[T any](p *ThreadPool, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	return submitTo(p, name, fn, func(j job) error {
		return p.pool.push(j, false)
	})
}

// SubmitContext is Submit for callers that would rather wait than be refused: on a
// bounded pool it blocks until the queue has room. If ctx ends first, or shutdown
// begins, the returned future has already failed with ctx's error or
// ErrPoolShutdown. ctx only bounds the wait for room; the task gets the pool's task
// context as usual.
func SubmitContext[T any](ctx context.Context, p *ThreadPool, fn func(ctx context.Context) (T, error)) *Future[T] {
	return submitTo(p, "", fn, func(j job) error {
		return p.pool.pushWait(ctx, j)
	})
}

func submitTo[T any](p *ThreadPool, name string, fn func(ctx context.Context) (T, error), enqueue func(job) error) *Future[T] {
	info := newTaskInfo(p.cfg.Name, name)
	if fn == nil {
		p.pool.obs.TaskRejected(info, ErrNilTask)
		return failedFutureFor[T](info, ErrNilTask)
	}
	if !p.running.Load() {
		p.pool.obs.TaskRejected(info, ErrPoolShutdown)
		return failedFutureFor[T](info, ErrPoolShutdown)
	}

	t := newDeferredTask(info, fn)
	if err := enqueue(t); err != nil {
		return failedFutureFor[T](info, err)
	}
	return t.promise.future
}

func failedFutureFor[T any](info TaskInfo, err error) *Future[T] {
	pr := newPromise[T](info.ID)
	pr.fail(err)
	return pr.future
}

// SubmitFunc queues an untyped task. The future carries only its error.
func (p *ThreadPool) SubmitFunc(fn TaskFunc) *Future[struct{}] {
	return p.SubmitFuncNamed("", fn)
}

// SubmitFuncNamed is SubmitFunc with a task name.
func (p *ThreadPool) SubmitFuncNamed(name string, fn TaskFunc) *Future[struct{}] {
	if fn == nil {
		return SubmitNamed[struct{}](p, name, nil)
	}
	return SubmitNamed(p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// SubmitFuncContext is SubmitFunc that waits for room in a bounded queue (see
// SubmitContext).
func (p *ThreadPool) SubmitFuncContext(ctx context.Context, fn TaskFunc) *Future[struct{}] {
	if fn == nil {
		return SubmitContext[struct{}](ctx, p, nil)
	}
	return SubmitContext(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Post queues fire-and-forget work. Errors and panics inside fn are only logged;
// use Submit when the outcome matters.
func (p *ThreadPool) Post(fn func(ctx context.Context)) error {
	return p.PostNamed("", fn)
}

// PostNamed is Post with a task name.
func (p *ThreadPool) PostNamed(name string, fn func(ctx context.Context)) error {
	info := newTaskInfo(p.cfg.Name, name)
	if fn == nil {
		p.pool.obs.TaskRejected(info, ErrNilTask)
		return ErrNilTask
	}
	if !p.running.Load() {
		p.pool.obs.TaskRejected(info, ErrPoolShutdown)
		return ErrPoolShutdown
	}
	return p.pool.push(&postedTask{info: info, fn: fn, logger: p.logger}, false)
}

// Shutdown stops admitting work and lets queued tasks drain for up to timeout
// (Config.ShutdownTimeout when timeout <= 0). If the queue has not drained by
// then, remaining queued tasks are abandoned (their futures fail with
// ErrPoolShutdown) and ErrShutdownTimeout is returned without waiting for tasks
// that are still executing.
//
// Shutdown is idempotent: only the first call does anything, later calls return
// nil immediately. If Stop runs while Shutdown is draining, Shutdown returns an
// error wrapping ErrPoolShutdown, since queued work was abandoned.
func (p *ThreadPool) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.cfg.shutdownTimeout()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.ShutdownContext(ctx)
}

// ShutdownContext is Shutdown bounded by ctx instead of a timeout.
func (p *ThreadPool) ShutdownContext(ctx context.Context) error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	p.state.Store(int32(StateShuttingDown))
	p.logger.Debugf("thread pool %s shutting down", p.cfg.Name)

	p.pool.beginShutdown()

	select {
	case <-p.pool.exited:
		p.pool.cancel()
		p.state.Store(int32(StateStopped))
		if p.pool.wasForced() {
			return fmt.Errorf("%w: stopped while draining", ErrPoolShutdown)
		}
		p.logger.Debugf("thread pool %s drained and stopped", p.cfg.Name)
		return nil
	case <-ctx.Done():
	}

	abandoned := p.pool.forceStop()
	p.state.Store(int32(StateStopped))
	_, active := p.pool.depth()
	p.logger.Warnf("thread pool %s force-stopped: %d queued tasks abandoned, %d still running",
		p.cfg.Name, abandoned, active)
	return fmt.Errorf("%w: %d queued tasks abandoned: %w", ErrShutdownTimeout, abandoned, ctx.Err())
}

// Stop abandons all queued work immediately and waits for running tasks to
// return. It is safe to call at any time, including during Shutdown.
func (p *ThreadPool) Stop() {
	if p.running.CompareAndSwap(true, false) {
		p.state.Store(int32(StateShuttingDown))
	}
	abandoned := p.pool.forceStop()
	if abandoned > 0 {
		p.logger.Infof("thread pool %s stopped: %d queued tasks abandoned", p.cfg.Name, abandoned)
	}
	<-p.pool.exited
	p.state.Store(int32(StateStopped))
}

// Stats returns a snapshot of pool counters
func (p *ThreadPool) Stats() PoolStats {
	queued, _ := p.pool.depth()
	s := p.stats

	utilization := 0.0
	if p.cfg.MaxQueueSize > 0 {
		utilization = float64(queued) / float64(p.cfg.MaxQueueSize) * 100.0
		if utilization > 100.0 {
			utilization = 100.0
		}
	}

	return PoolStats{
		Workers:          p.pool.size,
		QueuedTasks:      queued,
		ActiveTasks:      atomic.LoadInt64(&s.active),
		SubmittedTasks:   atomic.LoadInt64(&s.submitted),
		CompletedTasks:   atomic.LoadInt64(&s.completed),
		FailedTasks:      atomic.LoadInt64(&s.failed),
		PanickedTasks:    atomic.LoadInt64(&s.panicked),
		RejectedTasks:    atomic.LoadInt64(&s.rejected),
		AbandonedTasks:   atomic.LoadInt64(&s.abandoned),
		BusyTime:         time.Duration(atomic.LoadInt64(&s.busyNanos)),
		QueueCapacity:    p.cfg.MaxQueueSize,
		QueueUtilization: utilization,
		State:            p.State(),
	}
}
