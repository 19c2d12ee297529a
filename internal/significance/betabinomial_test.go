package significance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

func TestEstimateRho_Overdispersed(t *testing.T) {
	trials := []Trial{{100, 0}, {100, 20}, {100, 0}, {100, 20}}
	rho, warnings := NewBetaBinomialTester().EstimateRho(trials, 0.1)

	// each entity: dev^2 = 100, binomial variance = 9, inflation = 9 * 99
	assert.InDelta(t, 91.0/891.0, rho, 1e-12)
	assert.Empty(t, warnings)
}

func TestEstimateRho_UnderdispersedIsFloored(t *testing.T) {
	trials := []Trial{{100, 10}, {200, 20}, {50, 5}}
	rho, warnings := NewBetaBinomialTester().EstimateRho(trials, 0.1)

	assert.Equal(t, MinRho, rho)
	assert.True(t, warnings.Has(stats.WarningRhoFloored))
}

func TestEstimateRho_DegenerateDenominator(t *testing.T) {
	tester := NewBetaBinomialTester()

	rho, warnings := tester.EstimateRho([]Trial{{100, 3}}, 0)
	assert.Equal(t, 0.0, rho)
	assert.True(t, warnings.Has(stats.WarningRhoUnavailable))

	// N = 1 contributes nothing to the denominator
	rho, warnings = tester.EstimateRho([]Trial{{1, 1}, {1, 0}, {0, 0}}, 0.3)
	assert.Equal(t, 0.0, rho)
	assert.True(t, warnings.Has(stats.WarningRhoUnavailable))
}

func TestEstimateRho_Ceiling(t *testing.T) {
	trials := []Trial{{2, 0}, {2, 2}, {2, 0}, {2, 2}}
	rho, _ := NewBetaBinomialTester().EstimateRho(trials, 0.5)
	assert.LessOrEqual(t, rho, MaxRho)
}

func TestBetaBinomialPValue_DegeneratesToBinomial(t *testing.T) {
	tester := NewBetaBinomialTester()
	binom := BinomialSurvival(100, 20, 0.1)

	assert.InEpsilon(t, binom, tester.PValue(100, 20, 0.1, 1e-6), 0.01)
	assert.Equal(t, binom, tester.PValue(100, 20, 0.1, 0))
}

func TestBetaBinomialPValue_OverdispersionIsLessExtreme(t *testing.T) {
	tester := NewBetaBinomialTester()
	binom := BinomialSurvival(100, 40, 0.1)
	bb := tester.PValue(100, 40, 0.1, 0.1)

	assert.Greater(t, bb, binom)
	assert.LessOrEqual(t, bb, 1.0)
}

func TestBetaBinomialPValue_Bounds(t *testing.T) {
	tester := NewBetaBinomialTester()
	assert.Equal(t, 1.0, tester.PValue(0, 0, 0.1, 0.05))
	assert.Equal(t, 1.0, tester.PValue(50, 0, 0.1, 0.05))

	prev := 1.0
	for nc := 0; nc <= 60; nc++ {
		pv := tester.PValue(60, nc, 0.15, 0.02)
		assert.GreaterOrEqual(t, pv, 0.0)
		assert.LessOrEqual(t, pv, prev+1e-12)
		prev = pv
	}
}

func TestBetaBinomialRun(t *testing.T) {
	trials := []Trial{{100, 5}, {100, 40}, {100, 4}, {80, 12}, {120, 9}}
	family, err := NewBetaBinomialTester().Run(trials, 0.1)
	require.NoError(t, err)

	require.Len(t, family.Results, len(trials))
	assert.Greater(t, family.Rho, 0.0)
	for _, res := range family.Results {
		assert.Equal(t, family.Rho, res.Rho)
		assert.GreaterOrEqual(t, res.QValue, res.PValue)
		assert.LessOrEqual(t, res.QValue, 1.0)
	}
	assert.Less(t, family.Results[1].PValue, family.Results[0].PValue)
}

func TestBetaBinomialRun_InvalidParameters(t *testing.T) {
	_, err := NewBetaBinomialTester().Run([]Trial{{10, 1}}, -0.2)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))

	_, err = NewBetaBinomialTester().Run([]Trial{{10, 11}}, 0.2)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
}
