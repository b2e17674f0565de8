package concurrency

import (
	"fmt"
	"runtime"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when neither the call nor the config sets one
const DefaultShutdownTimeout = 30 * time.Second

// Config configures a ThreadPool
type Config struct {
	Name string `yaml:"name" json:"name"`

	// MinThreads is the floor on the worker count
	MinThreads int `yaml:"min_threads" json:"min_threads"`

	// MaxThreads is the worker count; 0 means runtime.NumCPU()
	MaxThreads int `yaml:"max_threads" json:"max_threads"`

	// MaxQueueSize bounds queued tasks; 0 means unbounded
	MaxQueueSize int `yaml:"max_queue_size" json:"max_queue_size"`

	// ShutdownTimeout is the drain bound used when Shutdown gets no timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns a pool sized to the machine with an unbounded queue
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		MinThreads:      1,
		MaxThreads:      runtime.NumCPU(),
		MaxQueueSize:    0,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// ThreadsConfig returns DefaultConfig with a fixed thread count (0 = hardware concurrency)
func ThreadsConfig(threads int) Config {
	cfg := DefaultConfig()
	cfg.MaxThreads = threads
	return cfg
}

// Validate reports configuration that cannot produce a working pool.
func (c Config) Validate() error {
	if c.MinThreads < 0 {
		return fmt.Errorf("min_threads must be >= 0, got %d", c.MinThreads)
	}
	if c.MaxThreads < 0 {
		return fmt.Errorf("max_threads must be >= 0, got %d", c.MaxThreads)
	}
	if c.MaxThreads > 0 && c.MinThreads > c.MaxThreads {
		return fmt.Errorf("min_threads (%d) exceeds max_threads (%d)", c.MinThreads, c.MaxThreads)
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("max_queue_size must be >= 0, got %d", c.MaxQueueSize)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be >= 0, got %s", c.ShutdownTimeout)
	}
	return nil
}

// workers resolves the number of goroutines to start: max(1, MinThreads, threads)
func (c Config) workers() int {
	n := c.MaxThreads
	if n == 0 {
		n = runtime.NumCPU()
	}
	if n < c.MinThreads {
		n = c.MinThreads
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout > 0 {
		return c.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}
