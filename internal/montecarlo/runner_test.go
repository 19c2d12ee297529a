package montecarlo

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/rng"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

func uniformDraw(r *rand.Rand, _ int) (float64, error) {
	return r.Float64(), nil
}

func TestRunner_DeterministicAcrossWorkerCounts(t *testing.T) {
	ctx := context.Background()

	base, err := newTestRunner(1).Map(ctx, "stage", 42, 1000, uniformDraw)
	require.NoError(t, err)
	require.Len(t, base, 1000)

	for _, workers := range []int{2, 3, 8} {
		got, err := newTestRunner(workers).Map(ctx, "stage", 42, 1000, uniformDraw)
		require.NoError(t, err)
		assert.Equal(t, base, got, "workers=%d", workers)
	}

	other, err := newTestRunner(4).Map(ctx, "stage", 43, 1000, uniformDraw)
	require.NoError(t, err)
	assert.NotEqual(t, base, other)
}

func TestRunner_DrawIndexes(t *testing.T) {
	got, err := newTestRunner(3).Map(context.Background(), "index", 1, 200, func(_ *rand.Rand, i int) (float64, error) {
		return float64(i), nil
	})
	require.NoError(t, err)
	for i, v := range got {
		assert.Equal(t, float64(i), v)
	}
}

func TestRunner_InvalidDrawCount(t *testing.T) {
	_, err := newTestRunner(2).Map(context.Background(), "stage", 1, 0, uniformDraw)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
}

func TestRunner_PropagatesDrawError(t *testing.T) {
	_, err := newTestRunner(2).Map(context.Background(), "stage", 1, 500, func(_ *rand.Rand, i int) (float64, error) {
		if i == 321 {
			return 0, errors.InvalidInput("bad draw")
		}
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidInput))
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(rng.New(), 2).Map(ctx, "stage", 1, 100, uniformDraw)
	assert.Error(t, err)
}

func TestRunner_Workers(t *testing.T) {
	assert.Equal(t, 1, NewRunner(rng.New(), 0).Workers())
	assert.Equal(t, 6, NewRunner(rng.New(), 6).Workers())
}
