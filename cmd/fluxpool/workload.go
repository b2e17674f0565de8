package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/observability/prometheus"
	"github.com/fluxorio/fluxpool/pkg/relay"
	promclient "github.com/prometheus/client_golang/prometheus"
)

var errCorruptAsset = errors.New("corrupt asset")

// assetResult is what a load task reports back to the main goroutine
type assetResult struct {
	Level   int           `json:"level"`
	Asset   string        `json:"asset"`
	Bytes   int           `json:"bytes"`
	Elapsed time.Duration `json:"elapsed"`
	RunID   string        `json:"run_id,omitempty"`
	Err     error         `json:"-"`
}

// assetMetrics exports per-asset outcomes. A nil *assetMetrics records nothing.
type assetMetrics struct {
	processed *promclient.CounterVec
	size      *promclient.HistogramVec
}

func newAssetMetrics(m *prometheus.Metrics) *assetMetrics {
	return &assetMetrics{
		processed: m.Counter("fluxpool_assets_total", "Assets processed, by outcome", "status"),
		size: m.Histogram("fluxpool_asset_size_bytes", "Size of loaded assets in bytes",
			promclient.ExponentialBuckets(1024, 2, 7)),
	}
}

func (a *assetMetrics) record(res assetResult) {
	if a == nil {
		return
	}
	if res.Err != nil {
		a.processed.WithLabelValues(prometheus.StatusError).Inc()
		return
	}
	a.processed.WithLabelValues(prometheus.StatusOK).Inc()
	a.size.WithLabelValues().Observe(float64(res.Bytes))
}

// levelSummary is the outcome of one streamed level
type levelSummary struct {
	Level  int
	Loaded int
	Failed int
	Bytes  int
}

// report summarises a workload run
type report struct {
	Levels  []levelSummary
	Results int
	Failed  int
	Bytes   int
	Elapsed time.Duration
	Stats   concurrency.PoolStats
}

// workload streams levels of assets through a pool. Each level is a spawned
// computation that submits its asset loads and awaits them without holding a
// worker; every finished asset is pushed to results for the consumer.
type workload struct {
	cfg     WorkloadConfig
	pool    *concurrency.ThreadPool
	results *concurrency.MpscQueue[assetResult]
	relay   *relay.NATSRelay
	metrics *assetMetrics
	logger  core.Logger
}

func (w *workload) loadAsset(level, index int) func(ctx context.Context) (assetResult, error) {
	name := fmt.Sprintf("level%d/asset%03d.pak", level, index)
	return func(ctx context.Context) (assetResult, error) {
		start := time.Now()
		delay := w.cfg.MinLoad
		if spread := w.cfg.MaxLoad - w.cfg.MinLoad; spread > 0 {
			delay += rand.N(spread)
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return assetResult{}, ctx.Err()
		}

		res := assetResult{
			Level:   level,
			Asset:   name,
			Bytes:   1024 + rand.IntN(64*1024),
			Elapsed: time.Since(start),
			RunID:   core.CorrelationID(ctx),
		}
		if rand.Float64() < w.cfg.FailureRate {
			return res, fmt.Errorf("%s: %w", name, errCorruptAsset)
		}
		return res, nil
	}
}

func (w *workload) streamLevel(level int) func(y *concurrency.Yielder) (levelSummary, error) {
	return func(y *concurrency.Yielder) (levelSummary, error) {
		log := w.logger.WithContext(y.Context())
		log.Debugf("streaming level %d", level)

		futures := make([]*concurrency.Future[assetResult], w.cfg.AssetsPerLevel)
		for i := range futures {
			futures[i] = concurrency.SubmitNamed(w.pool, "load-asset", w.loadAsset(level, i))
			if w.relay != nil {
				relay.Forward(w.relay, "load-asset", futures[i])
			}
		}

		summary := levelSummary{Level: level}
		for _, f := range futures {
			res, err := concurrency.Await(y, f)
			if errors.Is(err, concurrency.ErrPoolShutdown) || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			res.Err = err
			if err != nil {
				summary.Failed++
			} else {
				summary.Loaded++
				summary.Bytes += res.Bytes
			}
			if pushErr := w.results.Push(res); pushErr != nil {
				log.Warnf("result for %s dropped: %v", res.Asset, pushErr)
			}
		}
		return summary, nil
	}
}

// run starts every level and consumes results until all levels finish or ctx is
// done. It does not shut the pool down.
func (w *workload) run(ctx context.Context) (report, error) {
	start := time.Now()

	levels := make([]*concurrency.Future[levelSummary], w.cfg.Levels)
	for i := range levels {
		levels[i] = concurrency.SpawnNamed(w.pool, fmt.Sprintf("level-%d", i), w.streamLevel(i))
	}
	all := concurrency.All(levels...)

	var rep report
	consume := func(res assetResult) {
		rep.Results++
		w.metrics.record(res)
		if res.Err != nil {
			rep.Failed++
			w.logger.Warnf("asset failed: %v", res.Err)
			return
		}
		rep.Bytes += res.Bytes
		w.logger.Debugf("loaded %s (%d bytes) in %s", res.Asset, res.Bytes, res.Elapsed)
	}

	for !all.IsDone() {
		if ctx.Err() != nil {
			rep.Elapsed = time.Since(start)
			return rep, ctx.Err()
		}
		if res, ok := w.results.Pop(50 * time.Millisecond); ok {
			consume(res)
		}
	}
	for _, res := range w.results.Drain() {
		consume(res)
	}

	summaries, err := all.Get()
	rep.Levels = summaries
	rep.Elapsed = time.Since(start)
	rep.Stats = w.pool.Stats()
	return rep, err
}
