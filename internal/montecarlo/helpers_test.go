package montecarlo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/rng"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

func newTestRunner(workers int) *Runner {
	return NewRunner(rng.New(), workers).WithChunkSize(64)
}

func scoreOf(v float64) *float64 { return &v }

// scenarioTable is N=[100,100,100], NC=[5,40,4]; at p=0.10 and alpha=0.8
// only e2 carries impact (IV=24).
func scenarioTable() *audit.ObservationTable {
	return audit.NewObservationTable("2024-Q1", []audit.Observation{
		{EntityID: "e1", N: 100, NC: 5, Score: scoreOf(1)},
		{EntityID: "e2", N: 100, NC: 40, Score: scoreOf(9)},
		{EntityID: "e3", N: 100, NC: 4, Score: scoreOf(2)},
	})
}

var scenarioParams = audit.ImpactParameters{Alpha: 0.8}

func mustImpact(t *testing.T, table *audit.ObservationTable, p float64, params audit.ImpactParameters) *excess.Impact {
	t.Helper()
	impact, err := excess.NewCalculator().Compute(table, audit.Baseline(p), params)
	require.NoError(t, err)
	return impact
}
