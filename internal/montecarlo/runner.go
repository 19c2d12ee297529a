// Package montecarlo runs the resampling stages of an audit: the
// permutation null, the bootstrap interval and the probabilistic
// sensitivity analysis, plus the deterministic tornado sweep.
package montecarlo

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

const (
	// DefaultChunkSize is the number of draws sharing one RNG stream.
	DefaultChunkSize = 250
	// DefaultWorkers bounds the goroutines working on chunks.
	DefaultWorkers = 4
)

// DrawFunc computes draw i using the stream of the chunk that owns it.
type DrawFunc func(r *rand.Rand, i int) (float64, error)

// Runner fans draws out over chunks. Chunk c always uses the stream
// (stage, "chunk-c", seed), so results do not depend on the worker count.
type Runner struct {
	rng       ports.RNGPort
	workers   int
	chunkSize int
}

// NewRunner creates a runner with the given worker bound
func NewRunner(rng ports.RNGPort, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		rng:       rng,
		workers:   workers,
		chunkSize: DefaultChunkSize,
	}
}

// WithChunkSize returns a copy of the runner using size draws per chunk
func (r *Runner) WithChunkSize(size int) *Runner {
	cp := *r
	if size > 0 {
		cp.chunkSize = size
	}
	return &cp
}

// Workers returns the worker bound
func (r *Runner) Workers() int {
	return r.workers
}

// Map evaluates fn for draws 0..n-1 and returns the values in draw order.
func (r *Runner) Map(ctx context.Context, stage string, seed int64, n int, fn DrawFunc) ([]float64, error) {
	if n <= 0 {
		return nil, errors.InvalidParameter("%s: draw count %d must be > 0", stage, n)
	}
	if r.rng == nil {
		return nil, errors.InternalError("monte carlo runner has no RNG port")
	}

	out := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for chunk, start := 0, 0; start < n; chunk, start = chunk+1, start+r.chunkSize {
		end := min(start+r.chunkSize, n)
		key := fmt.Sprintf("chunk-%d", chunk)

		g.Go(func() error {
			stream, err := r.rng.Stream(gctx, "", stage, key, seed)
			if err != nil {
				return err
			}
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				v, err := fn(stream, i)
				if err != nil {
					return err
				}
				out[i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "%s stage failed", stage)
	}
	return out, nil
}
