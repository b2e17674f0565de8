package concurrency

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// workerPool owns the worker goroutines and the single shared queue they pull from.
// The queue is guarded by mu; cond wakes workers when work arrives or the pool stops.
// Task bodies always run outside the lock.
type workerPool struct {
	size     int
	maxQueue int
	obs      Observer

	mu         sync.Mutex
	cond       *sync.Cond   // work queued or pool stopping
	space      *sync.Cond   // a bounded queue has room again
	queue      *queue.Queue // of job
	stopping   bool         // no new submissions; workers drain then exit
	forced     bool         // workers exit without draining
	active     int          // tasks currently executing
	coroutines int          // spawned computations that have not finished

	ctx      context.Context // handed to every task; cancelled by forceStop
	cancel   context.CancelFunc
	halt     chan struct{} // closed by the first forceStop; never by the base context
	haltOnce sync.Once
	wg       sync.WaitGroup
	exited   chan struct{} // closed once every worker has returned
}

func newWorkerPool(ctx context.Context, size, maxQueue int, obs Observer) *workerPool {
	ctx, cancel := context.WithCancel(ctx)
	wp := &workerPool{
		size:     size,
		maxQueue: maxQueue,
		obs:      obs,
		queue:    queue.New(),
		ctx:      ctx,
		cancel:   cancel,
		halt:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	wp.cond = sync.NewCond(&wp.mu)
	wp.space = sync.NewCond(&wp.mu)
	return wp
}

func (wp *workerPool) start() {
	wp.wg.Add(wp.size)
	for i := 0; i < wp.size; i++ {
		go wp.worker()
	}
	go func() {
		wp.wg.Wait()
		close(wp.exited)
	}()
}

func (wp *workerPool) worker() {
	defer wp.wg.Done()

	for {
		j, ok := wp.next()
		if !ok {
			return
		}
		j.execute(wp.ctx, wp.obs)
		wp.finished()
	}
}

// next blocks until there is a job to run or the worker should exit.
func (wp *workerPool) next() (job, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	for {
		if wp.forced {
			return nil, false
		}
		if wp.queue.Length() > 0 {
			j := wp.queue.Remove().(job)
			wp.active++
			if wp.maxQueue > 0 {
				wp.space.Signal()
			}
			return j, true
		}
		// Suspended coroutines still need a worker to resume on.
		if wp.stopping && wp.coroutines == 0 {
			return nil, false
		}
		wp.cond.Wait()
	}
}

func (wp *workerPool) finished() {
	wp.mu.Lock()
	wp.active--
	wp.mu.Unlock()
}

// push enqueues j. Continuations of already-running coroutines are still accepted
// while draining and bypass the queue bound; only a forced stop refuses them.
func (wp *workerPool) push(j job, continuation bool) error {
	wp.mu.Lock()
	var err error
	switch {
	case wp.forced, wp.stopping && !continuation:
		err = ErrPoolShutdown
	case !continuation && wp.maxQueue > 0 && wp.queue.Length() >= wp.maxQueue:
		err = ErrQueueFull
	default:
		wp.queue.Add(j)
		if !continuation {
			wp.obs.TaskSubmitted(j.Info())
		}
	}
	wp.mu.Unlock()

	if err != nil {
		if !continuation {
			wp.obs.TaskRejected(j.Info(), err)
		}
		return err
	}
	wp.cond.Signal()
	return nil
}

// pushWait is push for a new task that waits for room in a bounded queue
// instead of failing with ErrQueueFull. It gives up when ctx ends or shutdown
// begins.
func (wp *workerPool) pushWait(ctx context.Context, j job) error {
	if wp.maxQueue > 0 {
		stop := context.AfterFunc(ctx, func() {
			wp.mu.Lock()
			wp.space.Broadcast()
			wp.mu.Unlock()
		})
		defer stop()
	}

	wp.mu.Lock()
	var err error
	for {
		if wp.stopping {
			err = ErrPoolShutdown
			break
		}
		if wp.maxQueue <= 0 || wp.queue.Length() < wp.maxQueue {
			wp.queue.Add(j)
			wp.obs.TaskSubmitted(j.Info())
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}
		wp.space.Wait()
	}
	wp.mu.Unlock()

	if err != nil {
		wp.obs.TaskRejected(j.Info(), err)
		return err
	}
	wp.cond.Signal()
	return nil
}

// pushCoroutine enqueues the first step of a spawned computation and counts it
// as live until coroutineDone.
func (wp *workerPool) pushCoroutine(j job) error {
	wp.mu.Lock()
	var err error
	switch {
	case wp.stopping:
		err = ErrPoolShutdown
	case wp.maxQueue > 0 && wp.queue.Length() >= wp.maxQueue:
		err = ErrQueueFull
	default:
		wp.queue.Add(j)
		wp.coroutines++
		wp.obs.TaskSubmitted(j.Info())
	}
	wp.mu.Unlock()

	if err != nil {
		wp.obs.TaskRejected(j.Info(), err)
		return err
	}
	wp.cond.Signal()
	return nil
}

func (wp *workerPool) coroutineDone() {
	wp.mu.Lock()
	wp.coroutines--
	last := wp.coroutines == 0
	wp.mu.Unlock()
	if last {
		wp.cond.Broadcast()
	}
}

// beginShutdown stops admissions and lets workers exit once the queue is empty.
func (wp *workerPool) beginShutdown() {
	wp.mu.Lock()
	wp.stopping = true
	wp.mu.Unlock()
	wp.cond.Broadcast()
	wp.space.Broadcast()
}

// forceStop abandons every queued job and tells workers to exit as soon as their
// current task returns. It returns the number of abandoned jobs.
func (wp *workerPool) forceStop() int {
	wp.mu.Lock()
	wp.stopping = true
	wp.forced = true
	abandoned := make([]job, 0, wp.queue.Length())
	for wp.queue.Length() > 0 {
		abandoned = append(abandoned, wp.queue.Remove().(job))
	}
	wp.mu.Unlock()
	wp.cond.Broadcast()
	wp.space.Broadcast()
	wp.haltOnce.Do(func() { close(wp.halt) })
	wp.cancel()

	for _, j := range abandoned {
		wp.obs.TaskAbandoned(j.Info())
		j.abandon(ErrPoolShutdown)
	}
	return len(abandoned)
}

func (wp *workerPool) wasForced() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.forced
}

func (wp *workerPool) depth() (queued, active int) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.queue.Length(), wp.active
}
