package montecarlo

import (
	"context"
	"math/rand/v2"
	"sync/atomic"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/cutoff"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

const stageBootstrap = "bootstrap"

// BootstrapConfig controls one bootstrap estimate.
type BootstrapConfig struct {
	Resamples int
	Seed      int64
	// Rule picks S* inside every resample. Nil re-derives it at the elbow.
	Rule cutoff.Rule
}

// Bootstrap estimates the sampling interval of the selection weight by
// resampling table rows with replacement.
type Bootstrap struct {
	runner *Runner
	calc   *excess.Calculator
}

// NewBootstrap creates a bootstrap estimator
func NewBootstrap(runner *Runner) *Bootstrap {
	return &Bootstrap{runner: runner, calc: excess.NewCalculator()}
}

// Estimate draws cfg.Resamples tables of the same size as table, recomputes
// impact and S* on each, and summarizes the weights. A resample whose total
// impact is 0 contributes w = 0 and raises EMPTY_RESAMPLE.
func (b *Bootstrap) Estimate(ctx context.Context, table *audit.ObservationTable, baseline audit.Baseline, params audit.ImpactParameters, cfg BootstrapConfig) (stats.IntervalResult, error) {
	if cfg.Resamples <= 0 {
		return stats.IntervalResult{}, errors.InvalidParameter("bootstrap resamples %d must be > 0", cfg.Resamples)
	}
	if err := baseline.Validate(); err != nil {
		return stats.IntervalResult{}, err
	}
	if err := params.Validate(); err != nil {
		return stats.IntervalResult{}, err
	}
	n := table.Len()
	if n == 0 {
		return stats.IntervalResult{}, errors.InvalidInput("bootstrap needs a non-empty observation table")
	}

	rule := cfg.Rule
	if rule == nil {
		rule = cutoff.AtElbow(params.CutN)
	}

	var empty atomic.Bool
	weights, err := b.runner.Map(ctx, stageBootstrap, cfg.Seed, cfg.Resamples, func(r *rand.Rand, _ int) (float64, error) {
		idx := make([]int, n)
		for j := range idx {
			idx[j] = r.IntN(n)
		}
		w, ok, err := weightOf(b.calc, table.Resample(idx), baseline, params, rule)
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
	if empty.Load() {
		res.Warnings.Add(stats.WarningEmptyResample)
	}
	return res, nil
}

// weightOf computes impact for table and the weight of the selection rule
// picks. ok is false when the total impact is 0.
func weightOf(calc *excess.Calculator, table *audit.ObservationTable, baseline audit.Baseline, params audit.ImpactParameters, rule cutoff.Rule) (float64, bool, error) {
	impact, err := calc.Compute(table, baseline, params)
	if err != nil {
		return 0, false, err
	}
	if impact.Total == 0 {
		return 0, false, nil
	}
	return impact.Weight(rule(impact)), true, nil
}
