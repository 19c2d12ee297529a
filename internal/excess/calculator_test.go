package excess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

func scenarioTable() *audit.ObservationTable {
	s := func(v float64) *float64 { return &v }
	return audit.NewObservationTable("scenario", []audit.Observation{
		{EntityID: "e1", N: 100, NC: 5, Score: s(1)},
		{EntityID: "e2", N: 100, NC: 40, Score: s(3)},
		{EntityID: "e3", N: 100, NC: 4, Score: s(2)},
	})
}

func TestCompute_Scenario(t *testing.T) {
	impact, err := NewCalculator().Compute(scenarioTable(), 0.10, audit.ImpactParameters{Alpha: 0.8})
	require.NoError(t, err)

	excess := []int{}
	iv := []int{}
	for _, rec := range impact.Records {
		excess = append(excess, rec.Excess)
		iv = append(iv, rec.Impact)
	}
	assert.Equal(t, []int{0, 30, 0}, excess)
	assert.Equal(t, []int{0, 24, 0}, iv)
	assert.Equal(t, 24, impact.Total)
	assert.Equal(t, 1.0, impact.Weight(NewSelection("e2")))
	assert.Equal(t, 0.0, impact.Weight(NewSelection("e1", "e3")))
}

func TestCompute_EdgeCases(t *testing.T) {
	table := scenarioTable()

	t.Run("zero baseline gives E = NC", func(t *testing.T) {
		impact, err := NewCalculator().Compute(table, 0, audit.ImpactParameters{Alpha: 1})
		require.NoError(t, err)
		for i, rec := range impact.Records {
			assert.Equal(t, table.Rows[i].NC, rec.Excess)
		}
	})

	t.Run("zero alpha gives no impact", func(t *testing.T) {
		impact, err := NewCalculator().Compute(table, 0.1, audit.ImpactParameters{Alpha: 0})
		require.NoError(t, err)
		assert.Equal(t, 0, impact.Total)
		assert.Equal(t, 30, impact.Records[1].Excess)
		assert.Equal(t, 0.0, impact.Weight(NewSelection("e2")))
	})

	t.Run("zero volume is excluded and flagged", func(t *testing.T) {
		withEmpty := audit.NewObservationTable("", append(append([]audit.Observation{}, table.Rows...),
			audit.Observation{EntityID: "e0", N: 0, NC: 0}))
		impact, err := NewCalculator().Compute(withEmpty, 0.1, audit.ImpactParameters{Alpha: 0.8})
		require.NoError(t, err)
		rec, ok := impact.Lookup("e0")
		require.True(t, ok)
		assert.False(t, rec.Eligible)
		assert.Equal(t, 0, rec.Excess)
		assert.True(t, impact.Warnings.Has(stats.WarningDegenerateInput))
		assert.Len(t, impact.Eligible(), 3)
	})

	t.Run("min_n filter", func(t *testing.T) {
		small := audit.NewObservationTable("", []audit.Observation{
			{EntityID: "big", N: 100, NC: 40},
			{EntityID: "small", N: 10, NC: 10},
		})
		impact, err := NewCalculator().Compute(small, 0.1, audit.ImpactParameters{Alpha: 1, MinN: 50})
		require.NoError(t, err)
		assert.Equal(t, 30, impact.Total)
		rec, _ := impact.Lookup("small")
		assert.False(t, rec.Eligible)
	})
}

func TestCompute_InvalidParameters(t *testing.T) {
	calc := NewCalculator()
	table := scenarioTable()

	_, err := calc.Compute(table, 1.5, audit.ImpactParameters{Alpha: 1})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))

	_, err = calc.Compute(table, 0.1, audit.ImpactParameters{Alpha: -0.1})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))

	_, err = calc.Compute(table, 0.1, audit.ImpactParameters{Alpha: 1, MinN: -3})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
}

func TestCompute_DoesNotMutateTable(t *testing.T) {
	table := scenarioTable()
	before := append([]audit.Observation{}, table.Rows...)

	calc := NewCalculator()
	for _, p := range []float64{0, 0.05, 0.1, 0.5} {
		for _, alpha := range []float64{0, 0.5, 2} {
			_, err := calc.Compute(table, audit.Baseline(p), audit.ImpactParameters{Alpha: alpha})
			require.NoError(t, err)
		}
	}
	assert.Equal(t, before, table.Rows)
}

func TestExcessAndImpactProperties(t *testing.T) {
	for n := 0; n <= 60; n += 7 {
		for nc := 0; nc <= n; nc++ {
			for _, p := range []float64{0, 0.013, 0.1, 0.33, 0.5, 1} {
				e := ExcessOf(n, nc, p)
				assert.GreaterOrEqual(t, e, 0)
				assert.GreaterOrEqual(t, float64(e), float64(nc)-float64(n)*p-1e-9)
				assert.Less(t, float64(e), math.Max(0, float64(nc)-float64(n)*p)+1)
				for _, alpha := range []float64{0, 0.8, 1.3} {
					iv := ImpactOf(e, alpha)
					assert.GreaterOrEqual(t, iv, 0)
					assert.GreaterOrEqual(t, float64(iv), alpha*float64(e)-1e-9)
				}
			}
		}
	}
	assert.Equal(t, 24, ImpactOf(30, 0.8))
	assert.Equal(t, 1, ImpactOf(1, 0.01))
	assert.Equal(t, 3, ExcessOf(10, 5, 0.25))
}

func TestSelectByCutoff(t *testing.T) {
	impact, err := NewCalculator().Compute(scenarioTable(), 0.1, audit.ImpactParameters{Alpha: 0.8})
	require.NoError(t, err)

	sel := impact.SelectByCutoff(2, 0)
	assert.Equal(t, []core.EntityID{"e2", "e3"}, sel.IDs())
	assert.Equal(t, 24, impact.SelectedImpact(sel))

	assert.Equal(t, 0, impact.SelectByCutoff(2, 101).Len())
}
