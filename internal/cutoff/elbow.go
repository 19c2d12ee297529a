// Package cutoff picks the score threshold S* at the elbow of the
// cumulative-impact curve.
package cutoff

import (
	"math"
	"sort"

	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

const tieTolerance = 1e-12

// Point is one distinct score and the impact accumulated by every eligible
// entity scoring at least that much.
type Point struct {
	Score     float64 `json:"score"`
	CumImpact int     `json:"cum_impact"`
}

// Curve returns the cumulative-impact curve over eligible, scored records
// with N >= cutN, ordered by descending score.
func Curve(impact *excess.Impact, cutN int) []Point {
	byScore := map[float64]int{}
	for _, rec := range impact.Records {
		if !rec.Eligible || rec.Score == nil || rec.N < cutN {
			continue
		}
		s := *rec.Score
		if math.IsNaN(s) {
			continue
		}
		byScore[s] += rec.Impact
	}

	scores := make([]float64, 0, len(byScore))
	for s := range byScore {
		scores = append(scores, s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	points := make([]Point, len(scores))
	cum := 0
	for i, s := range scores {
		cum += byScore[s]
		points[i] = Point{Score: s, CumImpact: cum}
	}
	return points
}

// Elbow returns the score of the point farthest from the chord joining the
// first and last points, after normalizing both axes to [0, 1]. Ties go to
// the higher score. A flat curve yields the highest score. ok is false only
// when points is empty.
func Elbow(points []Point) (score float64, ok bool) {
	switch len(points) {
	case 0:
		return 0, false
	case 1:
		return points[0].Score, true
	}

	first, last := points[0], points[len(points)-1]
	xSpan := first.Score - last.Score
	ySpan := float64(last.CumImpact - first.CumImpact)
	if ySpan == 0 || xSpan == 0 {
		return first.Score, true
	}

	best, bestDist := first.Score, -1.0
	for _, pt := range points {
		x := (first.Score - pt.Score) / xSpan
		y := float64(pt.CumImpact-first.CumImpact) / ySpan
		d := math.Abs(y - x)
		if d > bestDist+tieTolerance {
			best, bestDist = pt.Score, d
		}
	}
	return best, true
}

// Select derives S* from impact and returns it with the entities it selects.
func Select(impact *excess.Impact, cutN int) (float64, excess.Selection, bool) {
	s, ok := Elbow(Curve(impact, cutN))
	if !ok {
		return 0, excess.NewSelection(), false
	}
	return s, impact.SelectByCutoff(s, cutN), true
}
