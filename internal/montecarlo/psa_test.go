package montecarlo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

func TestPSA_DegenerateWithFixedAlpha(t *testing.T) {
	table := audit.NewObservationTable("p", []audit.Observation{
		{EntityID: "only", N: 100, NC: 90},
	})
	res, err := NewPSA(newTestRunner(2)).Run(context.Background(), table, 0.1, audit.ImpactParameters{Alpha: 1}, excess.NewSelection("only"), PSAConfig{
		Draws:      300,
		Seed:       4,
		BaselineN:  1000,
		BaselineNC: 100,
	})
	require.NoError(t, err)

	assert.True(t, res.Warnings.Has(stats.WarningPSAAlphaFixed))
	assert.False(t, res.Warnings.Has(stats.WarningEmptyResample))
	assert.Equal(t, 1.0, res.Median)
	assert.Equal(t, 1.0, res.CILow)
	assert.Equal(t, 1.0, res.CIHigh)
}

func TestPSA_Ordering(t *testing.T) {
	sel := excess.NewSelection("m1", "m2")
	res, err := NewPSA(newTestRunner(4)).Run(context.Background(), mixedTable(), 0.1, audit.ImpactParameters{Alpha: 0.8}, sel, PSAConfig{
		Draws:         800,
		Seed:          17,
		Concentration: 50,
		BaselineN:     1000,
		BaselineNC:    100,
	})
	require.NoError(t, err)

	assert.False(t, res.Warnings.Has(stats.WarningPSAAlphaFixed))
	assert.LessOrEqual(t, res.CILow, res.Median)
	assert.LessOrEqual(t, res.Median, res.CIHigh)
	assert.Greater(t, res.CIHigh, res.CILow)
	assert.Len(t, res.Samples, 800)
	for _, w := range res.Samples {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}
}

func TestPSA_DeterministicAcrossWorkers(t *testing.T) {
	sel := excess.NewSelection("m1")
	cfg := PSAConfig{Draws: 400, Seed: 8}
	a, err := NewPSA(newTestRunner(1)).Run(context.Background(), mixedTable(), 0.1, scenarioParams, sel, cfg)
	require.NoError(t, err)
	b, err := NewPSA(newTestRunner(7)).Run(context.Background(), mixedTable(), 0.1, scenarioParams, sel, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPSA_InvalidConfig(t *testing.T) {
	psa := NewPSA(newTestRunner(1))
	ctx := context.Background()
	sel := excess.NewSelection("e2")

	_, err := psa.Run(ctx, scenarioTable(), 0.1, scenarioParams, sel, PSAConfig{Draws: 0})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))

	_, err = psa.Run(ctx, scenarioTable(), 0.1, scenarioParams, sel, PSAConfig{Draws: 10, Concentration: -1})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))

	_, err = psa.Run(ctx, scenarioTable(), 0.1, scenarioParams, sel, PSAConfig{Draws: 10, BaselineN: 10, BaselineNC: 11})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
}
