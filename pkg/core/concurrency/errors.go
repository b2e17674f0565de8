package concurrency

import (
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

var (
	// ErrPoolShutdown is returned for work submitted after shutdown began and for
	// queued work abandoned by a forced stop.
	ErrPoolShutdown = errors.New("pool shut down")

	// ErrQueueFull is returned when a bounded pool queue is at capacity (backpressure)
	ErrQueueFull = errors.New("pool queue is full")

	// ErrShutdownTimeout is returned when queued work did not drain before the
	// shutdown deadline and the pool had to be force-stopped.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrNilTask is returned when a nil function is submitted
	ErrNilTask = errors.New("task cannot be nil")

	// ErrGlobalInitialized is returned by ConfigureGlobal once the global pool exists
	ErrGlobalInitialized = errors.New("global pool already initialized")

	// ErrMailboxClosed is returned when pushing to or popping from a closed queue
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned when pushing to a bounded queue that is full
	ErrMailboxFull = errors.New("mailbox is full")
)

// PanicError carries a panic recovered inside a task.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(r *panics.Recovered) *PanicError {
	return &PanicError{Value: r.Value, Stack: r.Stack}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IndexError reports which element of a parallel iteration failed.
type IndexError struct {
	Index int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("element %d: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
