// Package relay forwards task outcomes from a thread pool to other processes over
// NATS. Producers (pool tasks, future callbacks) push envelopes into an MPSC queue;
// a single spawned loop on the pool drains it and publishes, parked off-pool
// until the next push wakes it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/nats-io/nats.go"
)

// ErrRelayClosed is returned by Publish after Close
var ErrRelayClosed = errors.New("relay closed")

// Envelope is the JSON message published for one task outcome
type Envelope struct {
	TaskID   string          `json:"task_id"`
	Task     string          `json:"task,omitempty"`
	Pool     string          `json:"pool,omitempty"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Finished time.Time       `json:"finished"`
}

// NATSConfig configures a NATSRelay
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222".
	URL string `yaml:"url" json:"url"`

	// Subject receives every envelope. Default: "fluxpool.results".
	Subject string `yaml:"subject" json:"subject"`

	// Name is an optional NATS connection name.
	Name string `yaml:"name" json:"name"`

	// FlushTimeout bounds the wait for the server to acknowledge a batch.
	// Default: 5s.
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`

	// QueueCapacity bounds pending envelopes; 0 is unbounded.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`
}

// NATSRelay publishes envelopes to a NATS subject
type NATSRelay struct {
	nc      *nats.Conn
	subject string
	flush   time.Duration
	logger  core.Logger
	wake    chan struct{} // one pending signal is enough to rerun the loop

	queue   *concurrency.MpscQueue[Envelope]
	loop    *concurrency.Future[int64]
	closed  atomic.Bool
	closing atomic.Bool // set only after queue is closed

	published atomic.Int64
	failed    atomic.Int64
}

// NewNATSRelay connects to NATS and spawns the publish loop on pool. The loop
// wakes on each Publish and parks without holding a worker in between, but it
// stays live until Close: close the relay before shutting pool down, or the
// pool's drain waits for the loop until its timeout.
func NewNATSRelay(pool *concurrency.ThreadPool, cfg NATSConfig, logger core.Logger) (*NATSRelay, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "fluxpool.results"
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = 5 * time.Second
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	var queueOpts []concurrency.QueueOption
	if cfg.QueueCapacity > 0 {
		queueOpts = append(queueOpts, concurrency.WithCapacity(cfg.QueueCapacity))
	}

	r := &NATSRelay{
		nc:      nc,
		subject: subject,
		flush:   flush,
		wake:    make(chan struct{}, 1),
		logger:  logger.WithFields(map[string]interface{}{"component": "relay", "subject": subject}),
		queue:   concurrency.NewMpscQueue[Envelope](queueOpts...),
	}
	r.loop = concurrency.SpawnNamed(pool, "relay-publish", r.run)
	if o, done := r.loop.Outcome(); done && o.Err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to start relay loop: %w", o.Err)
	}
	return r, nil
}

// Subject returns the subject envelopes are published to
func (r *NATSRelay) Subject() string {
	return r.subject
}

// Queue exposes the pending-envelope queue, e.g. for a depth gauge
func (r *NATSRelay) Queue() *concurrency.MpscQueue[Envelope] {
	return r.queue
}

// Published returns how many envelopes were published successfully
func (r *NATSRelay) Published() int64 {
	return r.published.Load()
}

// Publish queues env for the publish loop. It is safe from any goroutine.
func (r *NATSRelay) Publish(env Envelope) error {
	if env.Finished.IsZero() {
		env.Finished = time.Now()
	}
	if err := r.queue.Push(env); err != nil {
		if errors.Is(err, concurrency.ErrMailboxClosed) {
			return ErrRelayClosed
		}
		return err
	}
	r.signal()
	return nil
}

func (r *NATSRelay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Forward publishes the outcome of f once it resolves. Successful values are
// JSON-encoded into Envelope.Result.
func Forward[T any](r *NATSRelay, task string, f *concurrency.Future[T]) {
	f.OnComplete(func(o concurrency.Outcome[T]) {
		env := Envelope{TaskID: f.ID(), Task: task, OK: o.OK()}
		if o.Err != nil {
			env.Error = o.Err.Error()
		} else if data, err := json.Marshal(o.Value); err == nil {
			env.Result = data
		} else {
			env.OK = false
			env.Error = fmt.Sprintf("encode result: %v", err)
		}
		if err := r.Publish(env); err != nil {
			r.logger.Warnf("dropping outcome of task %s: %v", env.TaskID, err)
		}
	})
}

// run is the publish loop. It returns the number of envelopes it published.
func (r *NATSRelay) run(y *concurrency.Yielder) (int64, error) {
	var total int64
	for {
		batch := r.queue.Drain()
		for _, env := range batch {
			if err := r.publish(env); err != nil {
				r.failed.Add(1)
				r.logger.Errorf("publish task %s: %v", env.TaskID, err)
				continue
			}
			total++
			r.published.Add(1)
		}
		if len(batch) > 0 {
			if err := r.nc.FlushTimeout(r.flush); err != nil {
				r.logger.Warnf("flush: %v", err)
			}
		}

		if r.closing.Load() && r.queue.Len() == 0 {
			return total, nil
		}
		y.Wait(r.wake)
	}
}

func (r *NATSRelay) publish(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: r.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("X-Task-ID", env.TaskID)
	return r.nc.PublishMsg(msg)
}

// Close stops accepting envelopes, waits for the loop to publish what is queued
// (bounded by ctx), then closes the connection. Close the relay before shutting
// its pool down: a pool drains only once the loop has returned.
func (r *NATSRelay) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.queue.Close()
	r.closing.Store(true)
	r.signal()

	_, err := r.loop.Await(ctx)
	if err != nil {
		if pending := r.queue.Len(); pending > 0 {
			r.logger.Warnf("relay closed with %d envelopes unpublished", pending)
		}
	}
	r.nc.Close()
	return err
}

// Subscribe delivers decoded envelopes published on subject to fn
func Subscribe(nc *nats.Conn, subject string, fn func(Envelope)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		fn(env)
	})
}
