package significance

import (
	"math"
	"sort"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
)

// Stratum2x2 is one stratum of the selected-vs-rest comparison:
//
//	            NC   conforming
//	selected     A       B
//	rest         C       D
type Stratum2x2 struct {
	Label string
	A     int
	B     int
	C     int
	D     int
}

// Total returns the stratum size
func (s Stratum2x2) Total() int {
	return s.A + s.B + s.C + s.D
}

// CMHTester runs the Cochran-Mantel-Haenszel test across strata.
type CMHTester struct{}

// NewCMHTester creates a new tester
func NewCMHTester() *CMHTester {
	return &CMHTester{}
}

// Test returns the Mantel-Haenszel common odds ratio and the 1-df statistic
//
//	X2 = (sum a - sum E[a])^2 / sum Var[a]
//
// with E and Var the hypergeometric moments of cell a given the stratum
// margins. Strata with zero total are skipped.
func (t *CMHTester) Test(strata []Stratum2x2) stats.CMHResult {
	var (
		res              stats.CMHResult
		orNum, orDen     float64
		sumA, sumE, sumV float64
	)

	for _, s := range strata {
		n := float64(s.Total())
		if n == 0 {
			continue
		}
		res.Strata++
		a, b, c, d := float64(s.A), float64(s.B), float64(s.C), float64(s.D)

		orNum += a * d / n
		orDen += b * c / n

		row1, row2 := a+b, c+d
		col1, col2 := a+c, b+d
		sumA += a
		sumE += row1 * col1 / n
		if n > 1 {
			sumV += row1 * row2 * col1 * col2 / (n * n * (n - 1))
		}
	}

	switch {
	case orDen == 0:
		res.OddsRatio = math.Inf(1)
		res.Warnings.Add(stats.WarningOddsRatioInfinite)
	default:
		res.OddsRatio = orNum / orDen
	}

	if sumV == 0 {
		res.ChiSquare = 0
		res.PValue = 1
		res.Warnings.Add(stats.WarningCMHZeroVariance)
		return res
	}

	diff := sumA - sumE
	res.ChiSquare = diff * diff / sumV
	res.PValue = stats.ClampProbability(ChiSquareSurvival1(res.ChiSquare))
	return res
}

// StratumMember is the view of an entity needed to build strata.
type StratumMember struct {
	Label    string
	N        int
	NC       int
	Selected bool
}

// BuildStrata groups members by label into 2x2 tables, sorted by label.
// Members without a label share the "" stratum.
func BuildStrata(members []StratumMember) []Stratum2x2 {
	byLabel := map[string]*Stratum2x2{}
	for _, m := range members {
		s, ok := byLabel[m.Label]
		if !ok {
			s = &Stratum2x2{Label: m.Label}
			byLabel[m.Label] = s
		}
		conforming := m.N - m.NC
		if m.Selected {
			s.A += m.NC
			s.B += conforming
		} else {
			s.C += m.NC
			s.D += conforming
		}
	}

	out := make([]Stratum2x2, 0, len(byLabel))
	for _, s := range byLabel {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
