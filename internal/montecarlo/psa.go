package montecarlo

import (
	"context"
	"math/rand/v2"
	"sync/atomic"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/cutoff"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

const (
	stagePSA = "psa"
	// DefaultConcentration is K in alpha ~ Beta(alpha*K, (1-alpha)*K).
	DefaultConcentration = 100.0
)

// PSAConfig controls one probabilistic sensitivity analysis.
type PSAConfig struct {
	Draws         int
	Seed          int64
	Concentration float64
	// BaselineN and BaselineNC give the counts behind the p_BR posterior.
	// When BaselineN is 0 the table's eligible totals are used.
	BaselineN  int
	BaselineNC int
}

// PSA propagates uncertainty in alpha and p_BR into the selection weight.
type PSA struct {
	runner *Runner
	calc   *excess.Calculator
}

// NewPSA creates a PSA runner
func NewPSA(runner *Runner) *PSA {
	return &PSA{runner: runner, calc: excess.NewCalculator()}
}

// Run draws alpha ~ Beta(alpha*K, (1-alpha)*K) and
// p_BR ~ Beta(NC+1, N-NC+1) independently per draw and recomputes the weight
// of sel. alpha outside (0, 1) is held fixed with PSA_ALPHA_FIXED.
func (p *PSA) Run(ctx context.Context, table *audit.ObservationTable, baseline audit.Baseline, params audit.ImpactParameters, sel excess.Selection, cfg PSAConfig) (stats.IntervalResult, error) {
	if cfg.Draws <= 0 {
		return stats.IntervalResult{}, errors.InvalidParameter("psa draws %d must be > 0", cfg.Draws)
	}
	if err := baseline.Validate(); err != nil {
		return stats.IntervalResult{}, err
	}
	if err := params.Validate(); err != nil {
		return stats.IntervalResult{}, err
	}
	k := cfg.Concentration
	if k == 0 {
		k = DefaultConcentration
	}
	if !(k > 0) {
		return stats.IntervalResult{}, errors.InvalidParameter("psa concentration %v must be > 0", cfg.Concentration)
	}

	n, nc := cfg.BaselineN, cfg.BaselineNC
	if n == 0 {
		n, nc = table.Totals(params.MinN)
	}
	if n < 0 || nc < 0 || nc > n {
		return stats.IntervalResult{}, errors.InvalidParameter("psa baseline counts NC=%d, N=%d are inconsistent", nc, n)
	}

	var warnings stats.Warnings
	alpha := params.Alpha
	sampleAlpha := alpha > 0 && alpha < 1
	if !sampleAlpha {
		warnings.Add(stats.WarningPSAAlphaFixed)
	}

	rule := cutoff.Fixed(sel)
	var empty atomic.Bool
	weights, err := p.runner.Map(ctx, stagePSA, cfg.Seed, cfg.Draws, func(r *rand.Rand, _ int) (float64, error) {
		a := alpha
		if sampleAlpha {
			a = distuv.Beta{Alpha: alpha * k, Beta: (1 - alpha) * k, Src: r}.Rand()
		}
		pbr := distuv.Beta{Alpha: float64(nc + 1), Beta: float64(n - nc + 1), Src: r}.Rand()

		w, ok, err := weightOf(p.calc, table, audit.Baseline(pbr), params.WithAlpha(a), rule)
		if !ok {
			empty.Store(true)
		}
		return w, err
	})
	if err != nil {
		return stats.IntervalResult{}, err
	}

	res, err := Summarize(weights)
	if err != nil {
		return stats.IntervalResult{}, err
	}
	res.Warnings.Merge(warnings)
	if empty.Load() {
		res.Warnings.Add(stats.WarningEmptyResample)
	}
	return res, nil
}
