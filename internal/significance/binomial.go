// Package significance implements the per-entity significance tests of an
// audit (exact binomial, beta-binomial), Benjamini-Hochberg correction and
// the Cochran-Mantel-Haenszel stratified test.
package significance

import (
	"math"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// DefaultWilsonZ is the normal quantile for a 95% interval.
const DefaultWilsonZ = 1.96

// BinomialTester runs the one-sided exact binomial test with a Wilson
// interval for the observed rate.
type BinomialTester struct {
	Z                    float64
	ContinuityCorrection bool
}

// NewBinomialTester creates a tester with z = 1.96 and continuity correction
func NewBinomialTester() *BinomialTester {
	return &BinomialTester{Z: DefaultWilsonZ, ContinuityCorrection: true}
}

// Test computes P[X >= nc | X ~ Binomial(n, p)] and the Wilson interval of nc/n.
// n = 0 yields p = 1 and the uninformative interval (0, 1).
func (t *BinomialTester) Test(n, nc int, p float64) (stats.BinomialResult, error) {
	if err := audit.Baseline(p).Validate(); err != nil {
		return stats.BinomialResult{}, err
	}
	if n < 0 || nc < 0 || nc > n {
		return stats.BinomialResult{}, errors.InvalidParameter("counts n=%d nc=%d violate 0 <= nc <= n", n, nc)
	}
	if n == 0 {
		return stats.BinomialResult{WilsonLow: 0, WilsonHigh: 1, PValue: 1, QValue: 1}, nil
	}

	pValue := BinomialSurvival(n, nc, p)
	low, high := t.Wilson(n, nc)
	return stats.BinomialResult{
		PHat:       float64(nc) / float64(n),
		WilsonLow:  low,
		WilsonHigh: high,
		PValue:     pValue,
		QValue:     pValue,
	}, nil
}

// BinomialSurvival returns P[X >= nc] for X ~ Binomial(n, p).
func BinomialSurvival(n, nc int, p float64) float64 {
	return stats.ClampProbability(upperTail(nc, n, func(k int) float64 {
		return LogBinomialPMF(k, n, p)
	}))
}

// Wilson returns the score interval for nc/n. The result always satisfies
// 0 <= low <= nc/n <= high <= 1.
func (t *BinomialTester) Wilson(n, nc int) (low, high float64) {
	if n <= 0 {
		return 0, 1
	}
	z := t.Z
	if z <= 0 {
		z = DefaultWilsonZ
	}
	nf := float64(n)
	pHat := float64(nc) / nf
	z2 := z * z

	if t.ContinuityCorrection {
		denom := 2 * (nf + z2)
		if nc > 0 {
			root := math.Sqrt(math.Max(0, z2-2-1/nf+4*pHat*(nf*(1-pHat)+1)))
			low = (2*nf*pHat + z2 - 1 - z*root) / denom
		}
		high = 1
		if nc < n {
			root := math.Sqrt(math.Max(0, z2+2-1/nf+4*pHat*(nf*(1-pHat)-1)))
			high = (2*nf*pHat + z2 + 1 + z*root) / denom
		}
	} else {
		denom := 1 + z2/nf
		center := pHat + z2/(2*nf)
		margin := z * math.Sqrt((pHat*(1-pHat)+z2/(4*nf))/nf)
		low = (center - margin) / denom
		high = (center + margin) / denom
	}

	low = math.Max(0, math.Min(low, pHat))
	high = math.Min(1, math.Max(high, pHat))
	return low, high
}
