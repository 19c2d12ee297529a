package significance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
)

func TestCMH_SingleStratumMatchesPlainOddsRatio(t *testing.T) {
	s := Stratum2x2{Label: "all", A: 40, B: 60, C: 9, D: 191}
	res := NewCMHTester().Test([]Stratum2x2{s})

	assert.InDelta(t, (40.0*191.0)/(60.0*9.0), res.OddsRatio, 1e-12)
	assert.Equal(t, 1, res.Strata)
	assert.Greater(t, res.ChiSquare, 0.0)
	assert.Less(t, res.PValue, 0.001)
}

func TestCMH_KnownStatistic(t *testing.T) {
	// single table a=10 b=10 c=5 d=15, n=40
	// E = 20*15/40 = 7.5, V = 20*20*15*25/(1600*39)
	res := NewCMHTester().Test([]Stratum2x2{{A: 10, B: 10, C: 5, D: 15}})
	v := 20.0 * 20 * 15 * 25 / (1600 * 39)
	x2 := 2.5 * 2.5 / v

	assert.InDelta(t, x2, res.ChiSquare, 1e-12)
	assert.InDelta(t, math.Erfc(math.Sqrt(x2/2)), res.PValue, 1e-10)
	assert.InDelta(t, 3.0, res.OddsRatio, 1e-12)
}

func TestCMH_ZeroTotalStrataExcluded(t *testing.T) {
	base := []Stratum2x2{{Label: "a", A: 10, B: 10, C: 5, D: 15}}
	withEmpty := append([]Stratum2x2{{Label: "empty"}}, base...)

	assert.Equal(t, NewCMHTester().Test(base), NewCMHTester().Test(withEmpty))
}

func TestCMH_InfiniteOddsRatio(t *testing.T) {
	res := NewCMHTester().Test([]Stratum2x2{{A: 5, B: 0, C: 3, D: 10}})

	assert.True(t, math.IsInf(res.OddsRatio, 1))
	assert.True(t, res.Warnings.Has(stats.WarningOddsRatioInfinite))
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
}

func TestCMH_ZeroVariance(t *testing.T) {
	// everyone in one row: hypergeometric variance is 0
	res := NewCMHTester().Test([]Stratum2x2{{A: 3, B: 7}})

	assert.Equal(t, 0.0, res.ChiSquare)
	assert.Equal(t, 1.0, res.PValue)
	assert.True(t, res.Warnings.Has(stats.WarningCMHZeroVariance))
}

func TestCMH_NoAssociation(t *testing.T) {
	strata := []Stratum2x2{
		{Label: "N", A: 10, B: 90, C: 20, D: 180},
		{Label: "S", A: 30, B: 70, C: 60, D: 140},
	}
	res := NewCMHTester().Test(strata)

	assert.InDelta(t, 1.0, res.OddsRatio, 1e-12)
	assert.InDelta(t, 0.0, res.ChiSquare, 1e-12)
	assert.InDelta(t, 1.0, res.PValue, 1e-9)
}

func TestBuildStrata(t *testing.T) {
	members := []StratumMember{
		{Label: "S", N: 100, NC: 40, Selected: true},
		{Label: "N", N: 100, NC: 5},
		{Label: "S", N: 50, NC: 10},
		{Label: "", N: 20, NC: 2, Selected: true},
	}
	strata := BuildStrata(members)

	require.Len(t, strata, 3)
	assert.Equal(t, Stratum2x2{Label: "", A: 2, B: 18}, strata[0])
	assert.Equal(t, Stratum2x2{Label: "N", C: 5, D: 95}, strata[1])
	assert.Equal(t, Stratum2x2{Label: "S", A: 40, B: 60, C: 10, D: 40}, strata[2])
}
