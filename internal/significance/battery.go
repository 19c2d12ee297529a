package significance

import (
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

// EntityReport is the per-entity outcome of both test families.
type EntityReport struct {
	Verdicts []stats.EntityVerdict
	Rho      float64
	Warnings stats.Warnings
}

// EntityBattery runs the exact binomial and beta-binomial tests over the
// eligible records of an impact computation. The two p-value families are
// corrected by separate BH runs.
type EntityBattery struct {
	binomial     *BinomialTester
	betaBinomial *BetaBinomialTester
}

// NewEntityBattery creates a battery around the given binomial tester
func NewEntityBattery(binomial *BinomialTester) *EntityBattery {
	if binomial == nil {
		binomial = NewBinomialTester()
	}
	return &EntityBattery{
		binomial:     binomial,
		betaBinomial: NewBetaBinomialTester(),
	}
}

// Run tests every eligible record, in table order.
func (b *EntityBattery) Run(impact *excess.Impact, sel excess.Selection) (*EntityReport, error) {
	eligible := impact.Eligible()
	report := &EntityReport{Verdicts: make([]stats.EntityVerdict, len(eligible))}

	trials := make([]Trial, len(eligible))
	binomP := make([]float64, len(eligible))
	for i, rec := range eligible {
		res, err := b.binomial.Test(rec.N, rec.NC, impact.Baseline)
		if err != nil {
			return nil, err
		}
		report.Verdicts[i] = stats.EntityVerdict{
			EntityID: rec.EntityID,
			N:        rec.N,
			NC:       rec.NC,
			Excess:   rec.Excess,
			Impact:   rec.Impact,
			Selected: sel.Contains(rec.EntityID),
			Binomial: res,
		}
		binomP[i] = res.PValue
		trials[i] = Trial{N: rec.N, NC: rec.NC}
	}

	for i, q := range BenjaminiHochberg(binomP) {
		report.Verdicts[i].Binomial.QValue = q
	}

	family, err := b.betaBinomial.Run(trials, impact.Baseline)
	if err != nil {
		return nil, err
	}
	for i, res := range family.Results {
		report.Verdicts[i].BetaBinomial = res
	}
	report.Rho = family.Rho
	report.Warnings.Merge(family.Warnings)
	return report, nil
}

// ImpactStrata builds the CMH strata for the eligible records of impact,
// grouping by the stratum field key.
func ImpactStrata(impact *excess.Impact, sel excess.Selection, key string) []Stratum2x2 {
	eligible := impact.Eligible()
	members := make([]StratumMember, len(eligible))
	for i, rec := range eligible {
		members[i] = StratumMember{
			Label:    rec.Strata[key],
			N:        rec.N,
			NC:       rec.NC,
			Selected: sel.Contains(rec.EntityID),
		}
	}
	return BuildStrata(members)
}
