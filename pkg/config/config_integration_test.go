package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluxorio/fluxpool/pkg/config"
	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
)

func TestLoadPool(t *testing.T) {
	yamlContent := `
name: assets
max_threads: 6
max_queue_size: 128
shutdown_timeout: 5s
`
	path := filepath.Join(t.TempDir(), "pool.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Setenv("POOL_MAX_THREADS", "3")

	cfg, err := config.LoadPool(path, "POOL")
	if err != nil {
		t.Fatalf("LoadPool failed: %v", err)
	}
	if cfg.Name != "assets" {
		t.Errorf("Name = %v, want assets", cfg.Name)
	}
	if cfg.MaxThreads != 3 {
		t.Errorf("MaxThreads = %v, want 3 (env override)", cfg.MaxThreads)
	}
	if cfg.MaxQueueSize != 128 {
		t.Errorf("MaxQueueSize = %v, want 128", cfg.MaxQueueSize)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	// Untouched fields keep their defaults
	if cfg.MinThreads != concurrency.DefaultConfig().MinThreads {
		t.Errorf("MinThreads = %v, want default", cfg.MinThreads)
	}
}

func TestLoadPool_Invalid(t *testing.T) {
	t.Setenv("POOL_MIN_THREADS", "8")
	t.Setenv("POOL_MAX_THREADS", "2")

	if _, err := config.LoadPool("", "POOL"); err == nil {
		t.Error("LoadPool should reject min_threads > max_threads")
	}
}

func TestPoolValidator_Nested(t *testing.T) {
	type AppConfig struct {
		Pool concurrency.Config `yaml:"pool"`
	}

	cfg := AppConfig{Pool: concurrency.Config{MaxQueueSize: -1}}
	v := config.PoolValidator("Pool")
	if err := v.Validate(&cfg); err == nil {
		t.Error("PoolValidator should reject a negative queue size")
	}

	cfg.Pool = concurrency.ThreadsConfig(2)
	if err := v.Validate(&cfg); err != nil {
		t.Errorf("PoolValidator failed for a valid config: %v", err)
	}

	if err := config.PoolValidator("Missing").Validate(&cfg); err == nil {
		t.Error("PoolValidator should fail for a missing field")
	}
}
