package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/fluxpool/pkg/config"
	"github.com/fluxorio/fluxpool/pkg/core"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/core/failfast"
	"github.com/fluxorio/fluxpool/pkg/observability/otel"
	"github.com/fluxorio/fluxpool/pkg/observability/prometheus"
	"github.com/fluxorio/fluxpool/pkg/relay"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fluxpool",
		Short:         "Run asset-loading workloads on a fluxpool thread pool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json); defaults to $CONFIG_PATH")

	root.AddCommand(newRunCommand(&configPath), newBenchCommand(&configPath), newConfigCommand(&configPath))
	return root
}

func newRunCommand(configPath *string) *cobra.Command {
	var threads int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream levels of synthetic assets through the pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("threads") {
				cfg.Pool.MaxThreads = threads
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runApp(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "worker count (0 = number of CPUs)")
	return cmd
}

func newBenchCommand(configPath *string) *cobra.Command {
	var blocks, blockSize int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Hash blocks in parallel and report throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}

			pool, err := concurrency.New(cfg.Pool, concurrency.WithLogger(logger))
			if err != nil {
				return err
			}
			defer pool.Stop()

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			res, err := runBench(ctx, pool, blocks, blockSize)
			printBench(cmd.OutOrStdout(), res, pool.Stats())
			return err
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", 4096, "number of blocks to hash")
	cmd.Flags().IntVar(&blockSize, "block-size", 64*1024, "bytes per block")
	return cmd
}

func newConfigCommand(configPath *string) *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, or write it to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if writePath != "" {
				return config.Save(writePath, cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	cmd.Flags().StringVarP(&writePath, "write", "w", "", "write the configuration to this file instead of stdout")
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func newLogger(cfg LogConfig) (core.Logger, error) {
	var logger core.Logger
	if cfg.Format == "json" {
		logger = core.NewJSONLogger(os.Stderr)
	} else {
		logger = core.NewDefaultLogger()
	}
	if err := core.SetLevel(logger, cfg.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return logger, nil
}

// runApp wires the observability stack and the optional relay around a pool, runs
// the workload and shuts everything down in reverse order.
func runApp(ctx context.Context, cfg *AppConfig, out io.Writer) (err error) {
	defer failfast.Recover(&err)
	failfast.NotNil(cfg, "config")

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	// Every log line and task of this run carries the run's request id. Tasks see
	// ctx as their base, so a signal reaches running loads too.
	ctx = core.WithNewRequestID(ctx)
	logger = logger.WithContext(ctx)
	logger.Infof("starting fluxpool %s", version)

	opts := []concurrency.Option{concurrency.WithLogger(logger), concurrency.WithBaseContext(ctx)}

	if cfg.Tracing.Exporter != otel.ExporterNone {
		if err := otel.Initialize(ctx, cfg.Tracing); err != nil {
			logger.Warnf("tracing disabled: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := otel.Shutdown(shutdownCtx); err != nil {
					logger.Warnf("tracing shutdown: %v", err)
				}
			}()
			opts = append(opts, concurrency.WithObserver(otel.NewTaskTracer(nil)))
		}
	}

	var metrics *prometheus.Metrics
	if cfg.Metrics.Enabled {
		metrics = prometheus.GetMetrics()
		opts = append(opts, concurrency.WithObserver(metrics))

		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()
		go func() {
			if err := prometheus.Serve(metricsCtx, cfg.Metrics.Addr, prometheus.DefaultRegistry); err != nil {
				logger.Errorf("metrics endpoint: %v", err)
			}
		}()
		logger.Infof("metrics on %s/metrics", cfg.Metrics.Addr)
	}

	pool, err := concurrency.New(cfg.Pool, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := pool.Shutdown(cfg.Pool.ShutdownTimeout); shutdownErr != nil {
			logger.Errorf("pool shutdown: %v", shutdownErr)
		}
	}()

	w := &workload{
		cfg:     cfg.Workload,
		pool:    pool,
		results: concurrency.NewMpscQueue[assetResult](),
		logger:  logger,
	}

	if metrics != nil {
		metrics.TrackPool(pool)
		metrics.TrackQueue("results", w.results)
		w.metrics = newAssetMetrics(metrics)
	}

	if cfg.Relay.Enabled {
		r, err := relay.NewNATSRelay(pool, cfg.Relay.NATS, logger)
		if err != nil {
			return err
		}
		w.relay = r
		// Runs before the pool shutdown deferred above.
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Pool.ShutdownTimeout)
			defer cancel()
			if err := r.Close(closeCtx); err != nil {
				logger.Warnf("relay close: %v", err)
			}
		}()
		if metrics != nil {
			metrics.TrackQueue("relay", r.Queue())
		}
	}

	rep, err := w.run(ctx)
	printReport(out, rep)
	if err != nil {
		logger.Warnf("workload interrupted: %v", err)
		return err
	}
	return nil
}

func printReport(w io.Writer, rep report) {
	for _, lvl := range rep.Levels {
		fmt.Fprintf(w, "level %d: %d loaded, %d failed, %d bytes\n", lvl.Level, lvl.Loaded, lvl.Failed, lvl.Bytes)
	}
	fmt.Fprintf(w, "%d assets (%d failed, %d bytes) in %s\n", rep.Results, rep.Failed, rep.Bytes, rep.Elapsed.Round(time.Millisecond))
	s := rep.Stats
	fmt.Fprintf(w, "pool: %d workers, %d submitted, %d completed, %d failed, busy %s\n",
		s.Workers, s.SubmittedTasks, s.CompletedTasks, s.FailedTasks, s.BusyTime.Round(time.Millisecond))
}
