package concurrency

import (
	"context"
	"runtime"
	"time"
)

// Yielder is handed to a spawned computation. Its methods are suspension points:
// the worker running the computation is released while it waits, and the
// computation resumes on whichever worker picks up its continuation. Code must
// not assume it stays on one goroutine-bound resource across a suspension.
//
// If the pool is force-stopped while the computation is suspended, the
// computation is abandoned at that suspension point: its future fails with
// ErrPoolShutdown and the rest of its body does not run (deferred calls do).
type Yielder struct {
	co *coroutine
}

// Context returns the computation's context, cancelled on forced stop.
func (y *Yielder) Context() context.Context {
	return y.co.ctx
}

// Yield gives other queued work a turn, then resumes.
func (y *Yielder) Yield() {
	suspendOn[struct{}](y.co, nil)
}

// Sleep suspends for at least d without holding a worker.
func (y *Yielder) Sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	suspendOn(y.co, timer.C)
}

// Wait suspends until ch delivers a value or is closed. A nil ch behaves like
// Yield.
func (y *Yielder) Wait(ch <-chan struct{}) {
	suspendOn(y.co, ch)
}

// Await suspends until f resolves and returns its outcome. Cancelling the pool's
// base context does not end the wait; only a forced stop does, and that abandons
// the computation at this point.
func Await[T any](y *Yielder, f *Future[T]) (T, error) {
	if !f.IsDone() {
		suspendOn(y.co, f.Done())
	}
	if !f.IsDone() {
		var zero T
		return zero, ErrPoolShutdown
	}
	return f.Get()
}

// coroutine runs a spawned body on its own goroutine, but only while a pool
// worker is lending itself to it: a worker executes a coStep by resuming the
// coroutine and blocking until it suspends or finishes.
type coroutine struct {
	wp      *workerPool
	info    TaskInfo
	ctx     context.Context
	body    func(y *Yielder) error
	onAbort func(err error)

	started bool
	resume  chan error    // worker -> coroutine; non-nil aborts
	yield   chan struct{} // coroutine -> worker; suspended or finished
}

// coStep is the queue entry for one execution slice of a coroutine.
type coStep struct {
	co *coroutine
}

func (s coStep) Info() TaskInfo {
	return s.co.info
}

func (s coStep) execute(ctx context.Context, obs Observer) {
	co := s.co
	if !co.started {
		co.started = true
		co.ctx = withTaskInfo(ctx, co.info)
		go co.main(obs)
	} else {
		co.resume <- nil
	}
	<-co.yield
}

func (s coStep) abandon(err error) {
	if !s.co.started {
		// Never ran: fail the future and release the live-coroutine slot here.
		s.co.onAbort(err)
		s.co.wp.coroutineDone()
		return
	}
	s.co.resume <- err
}

func (co *coroutine) main(obs Observer) {
	// Stays ErrPoolShutdown if the body is abandoned at a suspension point.
	err := ErrPoolShutdown

	var finish func(error)
	co.ctx, finish = obs.TaskStarted(co.ctx, co.info)
	defer func() {
		finish(err)
		co.wp.coroutineDone()
		co.yield <- struct{}{}
	}()

	err = co.body(&Yielder{co: co})
}

// suspendOn releases the current worker, waits off-pool until wake fires (or the
// pool is force-stopped), then queues a continuation and blocks until a worker
// resumes it.
func suspendOn[C any](co *coroutine, wake <-chan C) {
	co.yield <- struct{}{}
	if wake != nil {
		select {
		case <-wake:
		case <-co.wp.halt:
		}
	}
	co.continueOnPool()
}

func (co *coroutine) continueOnPool() {
	if err := co.wp.push(coStep{co: co}, true); err != nil {
		co.abort(err)
	}
	if err := <-co.resume; err != nil {
		co.abort(err)
	}
}

func (co *coroutine) abort(err error) {
	co.onAbort(err)
	runtime.Goexit()
}

// Spawn schedules a suspendable computation on the pool and returns a future for
// its result. Suspension points (Yielder.Yield, Await) free the worker, so a
// spawned computation waiting on other futures does not tie up a pool slot.
func Spawn[T any](p *ThreadPool, fn func(y *Yielder) (T, error)) *Future[T] {
	return SpawnNamed(p, "", fn)
}

// SpawnNamed is Spawn with a task name.
func SpawnNamed[T any](p *ThreadPool, name string, fn func(y *Yielder) (T, error)) *Future[T] {
	info := newTaskInfo(p.cfg.Name, name)
	if fn == nil {
		p.pool.obs.TaskRejected(info, ErrNilTask)
		return failedFutureFor[T](info, ErrNilTask)
	}
	if !p.running.Load() {
		p.pool.obs.TaskRejected(info, ErrPoolShutdown)
		return failedFutureFor[T](info, ErrPoolShutdown)
	}

	pr := newPromise[T](info.ID)
	co := &coroutine{
		wp:     p.pool,
		info:   info,
		resume: make(chan error, 1),
		yield:  make(chan struct{}, 1),
	}
	co.onAbort = func(err error) {
		pr.fail(err)
	}
	co.body = func(y *Yielder) error {
		value, err := runGuarded(co.ctx, func(context.Context) (T, error) {
			return fn(y)
		})
		pr.resolve(Outcome[T]{Value: value, Err: err})
		return err
	}

	if err := p.pool.pushCoroutine(coStep{co: co}); err != nil {
		return failedFutureFor[T](info, err)
	}
	return pr.future
}
