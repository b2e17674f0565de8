package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/fluxorio/fluxpool/pkg/core/concurrency"
	"go.uber.org/multierr"
)

// benchResult is the outcome of hashing a batch of blocks on a pool
type benchResult struct {
	Blocks     int
	BlockSize  int
	Failed     int
	Elapsed    time.Duration
	Throughput float64 // MiB/s
}

// runBench hashes blocks buffers of blockSize bytes with ParallelForCollect and
// reports throughput.
func runBench(ctx context.Context, pool *concurrency.ThreadPool, blocks, blockSize int) (benchResult, error) {
	sums := make([][sha256.Size]byte, blocks)
	start := time.Now()

	outcomes, err := concurrency.ParallelForCollect(ctx, pool, 0, blocks, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]byte, blockSize)
		for j := range buf {
			buf[j] = byte(i + j)
		}
		sums[i] = sha256.Sum256(buf)
		return nil
	})
	elapsed := time.Since(start)

	res := benchResult{
		Blocks:    blocks,
		BlockSize: blockSize,
		Failed:    len(multierr.Errors(err)),
		Elapsed:   elapsed,
	}
	if elapsed > 0 {
		res.Throughput = float64(blocks*blockSize) / (1 << 20) / elapsed.Seconds()
	}
	if len(outcomes) != blocks && blocks > 0 {
		return res, fmt.Errorf("collected %d outcomes for %d blocks", len(outcomes), blocks)
	}
	return res, err
}

func printBench(w io.Writer, res benchResult, stats concurrency.PoolStats) {
	fmt.Fprintf(w, "hashed %d x %d bytes on %d workers in %s (%.1f MiB/s), %d failed\n",
		res.Blocks, res.BlockSize, stats.Workers, res.Elapsed.Round(time.Microsecond), res.Throughput, res.Failed)
}
