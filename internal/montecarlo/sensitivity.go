package montecarlo

import (
	"math"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/cutoff"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

// Tornado parameter and direction labels
const (
	ParamAlpha    = "alpha"
	ParamBaseline = "p_br"
	DirectionLow  = "low"
	DirectionHigh = "high"
)

// Sensitivity runs one-factor-at-a-time perturbations of alpha and p_BR.
type Sensitivity struct {
	calc *excess.Calculator
}

// NewSensitivity creates a tornado analyzer
func NewSensitivity() *Sensitivity {
	return &Sensitivity{calc: excess.NewCalculator()}
}

// Tornado recomputes the weight of the fixed selection sel with alpha scaled
// by (1 -/+ alphaFrac) and p_BR shifted by -/+ baselinePP, each clipped to
// its valid range. Bars come in the order alpha low, alpha high, p_BR low,
// p_BR high.
func (s *Sensitivity) Tornado(table *audit.ObservationTable, baseline audit.Baseline, params audit.ImpactParameters, sel excess.Selection, alphaFrac, baselinePP float64) (stats.TornadoResult, error) {
	if math.IsNaN(alphaFrac) || alphaFrac < 0 {
		return stats.TornadoResult{}, errors.InvalidParameter("tornado alpha fraction %v must be >= 0", alphaFrac)
	}
	if math.IsNaN(baselinePP) || baselinePP < 0 {
		return stats.TornadoResult{}, errors.InvalidParameter("tornado baseline shift %v must be >= 0", baselinePP)
	}

	rule := cutoff.Fixed(sel)
	w0, _, err := weightOf(s.calc, table, baseline, params, rule)
	if err != nil {
		return stats.TornadoResult{}, err
	}

	p := baseline.Rate()
	alpha := params.Alpha
	perturbations := []struct {
		param, dir string
		alpha, p   float64
	}{
		{ParamAlpha, DirectionLow, math.Max(0, alpha*(1-alphaFrac)), p},
		{ParamAlpha, DirectionHigh, alpha * (1 + alphaFrac), p},
		{ParamBaseline, DirectionLow, alpha, math.Max(0, p-baselinePP)},
		{ParamBaseline, DirectionHigh, alpha, math.Min(1, p+baselinePP)},
	}

	res := stats.TornadoResult{BaselineWeight: w0, Bars: make([]stats.TornadoBar, 0, len(perturbations))}
	for _, pt := range perturbations {
		w, _, err := weightOf(s.calc, table, audit.Baseline(pt.p), params.WithAlpha(pt.alpha), rule)
		if err != nil {
			return stats.TornadoResult{}, err
		}
		value := pt.alpha
		if pt.param == ParamBaseline {
			value = pt.p
		}
		res.Bars = append(res.Bars, stats.TornadoBar{
			Parameter: pt.param,
			Direction: pt.dir,
			Value:     value,
			Weight:    w,
			Delta:     w - w0,
		})
	}
	return res, nil
}
