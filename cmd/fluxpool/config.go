package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fluxorio/fluxpool/pkg/config"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"github.com/fluxorio/fluxpool/pkg/observability/otel"
	"github.com/fluxorio/fluxpool/pkg/relay"
)

// envPrefix prefixes every environment override, e.g. FLUXPOOL_POOL_MAX_THREADS
const envPrefix = "FLUXPOOL"

// AppConfig is the configuration of the fluxpool binary
type AppConfig struct {
	Pool     concurrency.Config `yaml:"pool" json:"pool"`
	Log      LogConfig          `yaml:"log" json:"log"`
	Metrics  MetricsConfig      `yaml:"metrics" json:"metrics"`
	Tracing  otel.Config        `yaml:"tracing" json:"tracing"`
	Relay    RelayConfig        `yaml:"relay" json:"relay"`
	Workload WorkloadConfig     `yaml:"workload" json:"workload"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // text or json
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type RelayConfig struct {
	Enabled bool             `yaml:"enabled" json:"enabled"`
	NATS    relay.NATSConfig `yaml:"nats" json:"nats"`
}

// WorkloadConfig describes the synthetic asset-loading run: Levels levels of
// AssetsPerLevel assets, each taking between MinLoad and MaxLoad and failing with
// probability FailureRate.
type WorkloadConfig struct {
	Levels         int           `yaml:"levels" json:"levels"`
	AssetsPerLevel int           `yaml:"assets_per_level" json:"assets_per_level"`
	MinLoad        time.Duration `yaml:"min_load" json:"min_load"`
	MaxLoad        time.Duration `yaml:"max_load" json:"max_load"`
	FailureRate    float64       `yaml:"failure_rate" json:"failure_rate"`
}

func defaultConfig() AppConfig {
	pool := concurrency.DefaultConfig()
	pool.Name = "assets"
	pool.ShutdownTimeout = 10 * time.Second

	return AppConfig{
		Pool: pool,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Tracing: otel.Config{
			ServiceName:    "fluxpool",
			ServiceVersion: version,
			Environment:    "development",
			Exporter:       otel.ExporterNone,
			SampleRate:     1.0,
		},
		Relay: RelayConfig{
			Enabled: false,
			NATS: relay.NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "fluxpool.results",
				Name:    "fluxpool",
			},
		},
		Workload: WorkloadConfig{
			Levels:         4,
			AssetsPerLevel: 16,
			MinLoad:        5 * time.Millisecond,
			MaxLoad:        50 * time.Millisecond,
			FailureRate:    0.05,
		},
	}
}

func validators() []config.Validator {
	return []config.Validator{
		config.PoolValidator("Pool"),
		config.OneOfValidator("Log.Format", "text", "json"),
		config.OneOfValidator("Tracing.Exporter",
			otel.ExporterNone, otel.ExporterStdout, otel.ExporterZipkin, otel.ExporterJaeger),
		config.RangeValidator("Tracing.SampleRate", 0, 1),
		config.RangeValidator("Workload.Levels", 1, 1<<16),
		config.RangeValidator("Workload.AssetsPerLevel", 1, 1<<16),
		config.RangeValidator("Workload.FailureRate", 0, 1),
		config.DurationRange("Pool.ShutdownTimeout", 0, 10*time.Minute),
		config.DurationRange("Relay.NATS.FlushTimeout", 0, time.Minute),
		config.DurationRange("Workload.MinLoad", 0, 0),
		config.ValidatorFunc(func(c interface{}) error {
			w := c.(*AppConfig).Workload
			if w.MaxLoad < w.MinLoad {
				return fmt.Errorf("workload load window [%s, %s] is invalid", w.MinLoad, w.MaxLoad)
			}
			return nil
		}),
	}
}

// loadConfig layers defaults, the optional file at path (CONFIG_PATH when empty)
// and FLUXPOOL_* environment variables, then validates the result.
func loadConfig(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := config.LoadWithEnv(path, envPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := config.NewManager(&cfg, validators()...).Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
