package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates a deterministic RNG stream for one unit of work inside a
	// stage. Equal (runID, stageName, streamKey, baseSeed) give equal streams.
	Stream(ctx context.Context, runID, stageName, streamKey string, baseSeed int64) (*rand.Rand, error)

	// ValidateSeed checks that the named stream reproduces expected draws
	ValidateSeed(ctx context.Context, name string, seed int64, expected []float64) error
}
