package concurrency

import (
	"sync"
	"time"
)

// The process-wide pool is a convenience default for code that has no pool of its
// own. It is built on first use, sized to runtime.NumCPU(), and lives until
// ShutdownGlobal; once shut down it is not rebuilt, so later submissions fail
// fast. Code that needs isolation (tests in particular) should construct its own
// ThreadPool and pass it in as an Executor.
var (
	globalMu     sync.Mutex
	globalPool   *ThreadPool
	globalConfig = Config{Name: "global", MinThreads: 1}
	globalOpts   []Option
)

// Global returns the process-wide pool, creating it on first call.
func Global() *ThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		globalPool = MustNew(globalConfig, globalOpts...)
	}
	return globalPool
}

// ConfigureGlobal sets the configuration of the process-wide pool. It must run
// before the first Global call; afterwards it returns ErrGlobalInitialized.
func ConfigureGlobal(cfg Config, opts ...Option) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool != nil {
		return ErrGlobalInitialized
	}
	if cfg.Name == "" {
		cfg.Name = "global"
	}
	globalConfig = cfg
	globalOpts = opts
	return nil
}

// ShutdownGlobal shuts the process-wide pool down if it was ever created. Call it
// once during process teardown.
func ShutdownGlobal(timeout time.Duration) error {
	globalMu.Lock()
	p := globalPool
	globalMu.Unlock()

	if p == nil {
		return nil
	}
	return p.Shutdown(timeout)
}
