package cutoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

func score(v float64) *float64 { return &v }

func computeImpact(t *testing.T, rows []audit.Observation) *excess.Impact {
	t.Helper()
	impact, err := excess.NewCalculator().Compute(audit.NewObservationTable("p", rows), 0.1, audit.ImpactParameters{Alpha: 1})
	require.NoError(t, err)
	return impact
}

func TestCurve(t *testing.T) {
	impact := computeImpact(t, []audit.Observation{
		{EntityID: "a", N: 100, NC: 40, Score: score(9)},
		{EntityID: "b", N: 100, NC: 30, Score: score(9)},
		{EntityID: "c", N: 100, NC: 15, Score: score(4)},
		{EntityID: "d", N: 100, NC: 50},
		{EntityID: "e", N: 10, NC: 9, Score: score(10)},
	})

	points := Curve(impact, 50)
	assert.Equal(t, []Point{
		{Score: 9, CumImpact: 50},
		{Score: 4, CumImpact: 55},
	}, points)

	withSmall := Curve(impact, 0)
	require.Len(t, withSmall, 3)
	assert.Equal(t, Point{Score: 10, CumImpact: 8}, withSmall[0])
}

func TestElbow(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   float64
		ok     bool
	}{
		{"empty", nil, 0, false},
		{"single", []Point{{Score: 3, CumImpact: 7}}, 3, true},
		{"two scores picks higher", []Point{{5, 10}, {2, 30}}, 5, true},
		{"flat curve picks highest", []Point{{5, 10}, {4, 10}, {1, 10}}, 5, true},
		{"concave knee", []Point{{10, 50}, {9, 80}, {8, 95}, {7, 98}, {1, 100}}, 8, true},
		{"linear curve ties to highest", []Point{{3, 0}, {2, 10}, {1, 20}}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Elbow(tt.points)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect(t *testing.T) {
	impact := computeImpact(t, []audit.Observation{
		{EntityID: "a", N: 100, NC: 60, Score: score(10)},
		{EntityID: "b", N: 100, NC: 55, Score: score(9)},
		{EntityID: "c", N: 100, NC: 12, Score: score(5)},
		{EntityID: "d", N: 100, NC: 11, Score: score(3)},
		{EntityID: "e", N: 100, NC: 10, Score: score(1)},
	})

	s, sel, ok := Select(impact, 0)
	require.True(t, ok)
	assert.Equal(t, 9.0, s)
	assert.Equal(t, []core.EntityID{"a", "b"}, sel.IDs())

	_, sel, ok = Select(computeImpact(t, []audit.Observation{{EntityID: "x", N: 10, NC: 1}}), 0)
	assert.False(t, ok)
	assert.Zero(t, sel.Len())
}
