package prometheus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/core/failfast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "fluxpool"}, DefaultRegistry)

	// Metrics collection
	metricsOnce sync.Once
	metrics     *Metrics
)

// Task completion statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPanic = "panic"
)

// Metrics holds the thread pool metrics. It implements concurrency.Observer, so a
// pool reports into it once constructed WithObserver(metrics).
type Metrics struct {
	registerer prometheus.Registerer

	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksRejected  *prometheus.CounterVec
	TasksAbandoned *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	ActiveTasks    *prometheus.GaugeVec

	customMu sync.Mutex
	custom   map[string]prometheus.Collector // application metrics by name
}

var _ concurrency.Observer = (*Metrics)(nil)

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		registerer: registerer,

		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_tasks_submitted_total",
				Help: "Total number of tasks accepted by a pool",
			},
			[]string{"pool"},
		),
		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_tasks_completed_total",
				Help: "Total number of tasks that finished executing",
			},
			[]string{"pool", "status"}, // status: ok, error, panic
		),
		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_tasks_rejected_total",
				Help: "Total number of submissions refused by a pool",
			},
			[]string{"pool", "reason"}, // reason: shutdown, queue_full, nil_task
		),
		TasksAbandoned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fluxpool_tasks_abandoned_total",
				Help: "Total number of queued tasks dropped by a forced stop",
			},
			[]string{"pool"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fluxpool_task_duration_seconds",
				Help:    "Task execution time in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"pool"},
		),
		ActiveTasks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fluxpool_active_tasks",
				Help: "Number of tasks currently executing",
			},
			[]string{"pool"},
		),

		custom: make(map[string]prometheus.Collector),
	}
}

// TaskSubmitted implements concurrency.Observer
func (m *Metrics) TaskSubmitted(info concurrency.TaskInfo) {
	m.TasksSubmitted.WithLabelValues(info.Pool).Inc()
}

// TaskRejected implements concurrency.Observer
func (m *Metrics) TaskRejected(info concurrency.TaskInfo, err error) {
	m.TasksRejected.WithLabelValues(info.Pool, rejectReason(err)).Inc()
}

// TaskAbandoned implements concurrency.Observer
func (m *Metrics) TaskAbandoned(info concurrency.TaskInfo) {
	m.TasksAbandoned.WithLabelValues(info.Pool).Inc()
}

// TaskStarted implements concurrency.Observer
func (m *Metrics) TaskStarted(ctx context.Context, info concurrency.TaskInfo) (context.Context, func(error)) {
	active := m.ActiveTasks.WithLabelValues(info.Pool)
	active.Inc()
	start := time.Now()

	return ctx, func(err error) {
		active.Dec()
		m.TaskDuration.WithLabelValues(info.Pool).Observe(time.Since(start).Seconds())
		m.TasksCompleted.WithLabelValues(info.Pool, completionStatus(err)).Inc()
	}
}

func completionStatus(err error) string {
	var pe *concurrency.PanicError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &pe):
		return StatusPanic
	default:
		return StatusError
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, concurrency.ErrPoolShutdown):
		return "shutdown"
	case errors.Is(err, concurrency.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, concurrency.ErrNilTask):
		return "nil_task"
	default:
		return "other"
	}
}

// TrackPool exports the queue depth and worker count of p as gauges labelled with
// the pool name. Each pool name can be tracked once per registerer.
func (m *Metrics) TrackPool(p *concurrency.ThreadPool) {
	labels := prometheus.Labels{"pool": p.Name()}
	factory := promauto.With(m.registerer)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "fluxpool_queue_depth",
		Help:        "Tasks waiting for a worker",
		ConstLabels: labels,
	}, func() float64 {
		return float64(p.Stats().QueuedTasks)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "fluxpool_workers",
		Help:        "Worker goroutines owned by the pool",
		ConstLabels: labels,
	}, func() float64 {
		return float64(p.Size())
	})
}

// Lengther is anything with a current length, such as a concurrency.MpscQueue.
type Lengther interface {
	Len() int
}

// TrackQueue exports the length of q as fluxpool_mailbox_depth{queue=name}.
func (m *Metrics) TrackQueue(name string, q Lengther) {
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "fluxpool_mailbox_depth",
		Help:        "Items waiting in an MPSC queue",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 {
		return float64(q.Len())
	})
}

// Counter returns the application counter called name, registering it on first
// use. Later calls with the same name return the first counter and ignore help
// and labels.
func (m *Metrics) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	return customVec(m, name, func(f promauto.Factory) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	})
}

// Histogram is Counter for histograms. nil buckets means prometheus.DefBuckets,
// which suits durations in seconds rather than sizes.
func (m *Metrics) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return customVec(m, name, func(f promauto.Factory) *prometheus.HistogramVec {
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		return f.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	})
}

// customVec returns the metric registered under name, creating it with build if
// there is none. Asking for an existing name as a different metric type panics.
func customVec[V prometheus.Collector](m *Metrics, name string, build func(promauto.Factory) V) V {
	m.customMu.Lock()
	defer m.customMu.Unlock()

	if existing, ok := m.custom[name]; ok {
		v, ok := existing.(V)
		failfast.If(ok, "metric %s is already registered as %T", name, existing)
		return v
	}
	v := build(promauto.With(m.registerer))
	m.custom[name] = v
	return v
}
