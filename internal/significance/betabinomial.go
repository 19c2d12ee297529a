package significance

import (
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Bounds for the method-of-moments intra-class correlation.
const (
	MinRho = 1e-9
	MaxRho = 0.9999
)

// Trial is one entity's (N, NC) pair.
type Trial struct {
	N  int
	NC int
}

// BetaBinomialFamily is the result of one beta-binomial run over a family of
// entities, in input order.
type BetaBinomialFamily struct {
	Rho      float64
	Results  []stats.BetaBinomialResult
	Warnings stats.Warnings
}

// BetaBinomialTester corrects the binomial test for overdispersion across
// entities with a single shared rho.
type BetaBinomialTester struct{}

// NewBetaBinomialTester creates a new tester
func NewBetaBinomialTester() *BetaBinomialTester {
	return &BetaBinomialTester{}
}

// EstimateRho matches the observed excess variance to the beta-binomial
// inflation term:
//
//	rho = sum[(NC - N p)^2 - N p (1-p)] / sum[N p (1-p) (N-1)]
//
// A non-positive denominator returns rho = 0 (no correction). Otherwise rho
// is clipped to [MinRho, MaxRho].
func (t *BetaBinomialTester) EstimateRho(trials []Trial, p float64) (float64, stats.Warnings) {
	var warnings stats.Warnings
	num, den := 0.0, 0.0
	for _, tr := range trials {
		if tr.N <= 0 {
			continue
		}
		n := float64(tr.N)
		dev := float64(tr.NC) - n*p
		binVar := n * p * (1 - p)
		num += dev*dev - binVar
		den += binVar * (n - 1)
	}
	if den <= 0 {
		warnings.Add(stats.WarningRhoUnavailable)
		return 0, warnings
	}
	rho := num / den
	if rho < MinRho {
		warnings.Add(stats.WarningRhoFloored)
		rho = MinRho
	}
	if rho > MaxRho {
		rho = MaxRho
	}
	return rho, warnings
}

// PValue returns P[X >= nc] for X ~ BetaBinomial(n, a, b) with
// a = p(1/rho - 1) and b = (1-p)(1/rho - 1). rho = 0 and the boundary rates
// fall back to the binomial tail.
func (t *BetaBinomialTester) PValue(n, nc int, p, rho float64) float64 {
	if n <= 0 || nc <= 0 {
		return 1
	}
	if rho <= 0 || p <= 0 || p >= 1 {
		return BinomialSurvival(n, nc, p)
	}
	scale := 1/rho - 1
	a := p * scale
	b := (1 - p) * scale
	return stats.ClampProbability(upperTail(nc, n, func(k int) float64 {
		return LogBetaBinomialPMF(k, n, a, b)
	}))
}

// Run estimates rho over trials, tests each entity and applies BH to the
// family of beta-binomial p-values.
func (t *BetaBinomialTester) Run(trials []Trial, p float64) (*BetaBinomialFamily, error) {
	if err := audit.Baseline(p).Validate(); err != nil {
		return nil, err
	}
	for _, tr := range trials {
		if tr.N < 0 || tr.NC < 0 || tr.NC > tr.N {
			return nil, errors.InvalidParameter("counts n=%d nc=%d violate 0 <= nc <= n", tr.N, tr.NC)
		}
	}

	rho, warnings := t.EstimateRho(trials, p)
	pValues := make([]float64, len(trials))
	for i, tr := range trials {
		pValues[i] = t.PValue(tr.N, tr.NC, p, rho)
	}
	qValues := BenjaminiHochberg(pValues)

	family := &BetaBinomialFamily{
		Rho:      rho,
		Results:  make([]stats.BetaBinomialResult, len(trials)),
		Warnings: warnings,
	}
	for i := range trials {
		family.Results[i] = stats.BetaBinomialResult{Rho: rho, PValue: pValues[i], QValue: qValues[i]}
	}
	return family, nil
}
