package concurrency

import (
	"runtime"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.MaxThreads != runtime.NumCPU() {
		t.Errorf("MaxThreads = %d, want %d", cfg.MaxThreads, runtime.NumCPU())
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, DefaultShutdownTimeout)
	}
}

func TestConfig_Workers(t *testing.T) {
	tests := []struct {
		cfg  Config
		want int
	}{
		{Config{MaxThreads: 1}, 1},
		{Config{MaxThreads: 8}, 8},
		{Config{MinThreads: 0, MaxThreads: 0}, runtime.NumCPU()},
		{Config{MinThreads: 6, MaxThreads: 2}, 6},
	}
	for _, tt := range tests {
		if got := tt.cfg.workers(); got != tt.want {
			t.Errorf("%+v.workers() = %d, want %d", tt.cfg, got, tt.want)
		}
	}
}

func TestConfig_ShutdownTimeout(t *testing.T) {
	if got := (Config{}).shutdownTimeout(); got != DefaultShutdownTimeout {
		t.Errorf("shutdownTimeout() = %v, want %v", got, DefaultShutdownTimeout)
	}
	if got := (Config{ShutdownTimeout: time.Second}).shutdownTimeout(); got != time.Second {
		t.Errorf("shutdownTimeout() = %v, want 1s", got)
	}
	if got := ThreadsConfig(2).MaxThreads; got != 2 {
		t.Errorf("ThreadsConfig(2).MaxThreads = %d, want 2", got)
	}
}
