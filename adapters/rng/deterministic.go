// Package rng provides the deterministic PCG-backed RNGPort used by the
// Monte Carlo stages.
package rng

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

var _ ports.RNGPort = (*Deterministic)(nil)

// Deterministic derives every stream from the base seed and a hash of its
// labels. Streams share no state, so concurrent workers never contend.
type Deterministic struct{}

// New creates a deterministic RNG adapter
func New() *Deterministic {
	return &Deterministic{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (d *Deterministic) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(uint64(seed), hashString(name))), nil
}

// Stream creates a deterministic RNG stream for a specific stage and key
func (d *Deterministic) Stream(ctx context.Context, runID, stageName, streamKey string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := hashString(runID)
	h = mix(h, hashString(stageName))
	h = mix(h, hashString(streamKey))
	return rand.New(rand.NewPCG(uint64(baseSeed), h)), nil
}

// ValidateSeed draws len(expected) uniforms from SeededStream(name, seed)
// and compares them to expected.
func (d *Deterministic) ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error {
	r, err := d.SeededStream(ctx, name, seed)
	if err != nil {
		return err
	}
	for i, want := range expected {
		got := r.Float64()
		if math.Abs(got-want) > 1e-12 {
			return errors.Newf(errors.CodeInternalError,
				"seed %d for %q diverged at draw %d: got %v, want %v", seed, name, i, got, want)
		}
	}
	return nil
}

// hashString is djb2 widened to 64 bits
func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

func mix(a, b uint64) uint64 {
	return a*1099511628211 ^ b
}
