package app

import (
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/config"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/cutoff"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

// Selection modes reported on AuditReport
const (
	SelectionExplicit = "explicit"
	SelectionCutoff   = "cutoff"
	SelectionElbow    = "elbow"
)

// AuditOptions sizes the Monte Carlo stages. Zero values take the service
// defaults.
type AuditOptions struct {
	Permutations      int      `json:"permutations,omitempty" validate:"gte=0"`
	Bootstrap         int      `json:"bootstrap,omitempty" validate:"gte=0"`
	PSADraws          int      `json:"psa_draws,omitempty" validate:"gte=0"`
	PSAConcentration  float64  `json:"psa_concentration,omitempty" validate:"gte=0"`
	Seed              *int64   `json:"seed,omitempty"`
	StratumKey        *string  `json:"stratum_key,omitempty"`
	TornadoAlphaFrac  *float64 `json:"tornado_alpha_frac,omitempty" validate:"omitempty,gte=0"`
	TornadoBaselinePP *float64 `json:"tornado_baseline_pp,omitempty" validate:"omitempty,gte=0,lte=1"`
	// KeepSamples keeps the Monte Carlo draws on the report.
	KeepSamples bool `json:"keep_samples,omitempty"`
}

// AuditRequest is one audit of an observation table.
type AuditRequest struct {
	Table    *audit.ObservationTable `json:"table" validate:"required"`
	Baseline audit.Baseline          `json:"baseline" validate:"gte=0,lte=1"`
	Params   audit.ImpactParameters  `json:"params"`
	// Selection names S* explicitly. When empty, Cutoff selects by score,
	// and without Cutoff S* sits at the elbow of the impact curve.
	Selection []core.EntityID `json:"selection,omitempty"`
	Cutoff    *float64        `json:"cutoff,omitempty"`
	Options   AuditOptions    `json:"options"`
}

// AuditReport is the full result of an audit run.
type AuditReport struct {
	RunID          core.RunID              `json:"run_id"`
	Period         string                  `json:"period,omitempty"`
	CreatedAt      core.Timestamp          `json:"created_at"`
	Baseline       float64                 `json:"baseline"`
	Params         audit.ImpactParameters  `json:"params"`
	SelectionMode  string                  `json:"selection_mode"`
	Cutoff         *float64                `json:"cutoff,omitempty"`
	Selected       []core.EntityID         `json:"selected"`
	ImpactTotal    int                     `json:"impact_total"`
	ImpactSelected int                     `json:"impact_selected"`
	Weight         float64                 `json:"weight"`
	Entities       []stats.EntityVerdict   `json:"entities"`
	Rho            float64                 `json:"rho"`
	Permutation    stats.PermutationResult `json:"permutation"`
	CMH            *stats.CMHResult        `json:"cmh,omitempty"`
	StratumKey     string                  `json:"stratum_key,omitempty"`
	Bootstrap      stats.IntervalResult    `json:"bootstrap"`
	Tornado        stats.TornadoResult     `json:"tornado"`
	PSA            stats.IntervalResult    `json:"psa"`
	Curve          []cutoff.Point          `json:"curve,omitempty"`
	Warnings       stats.Warnings          `json:"warnings,omitempty"`
}

// TrimSamples drops the Monte Carlo draws, leaving the summaries.
func (r *AuditReport) TrimSamples() {
	r.Permutation.NullSamples = nil
	r.Bootstrap.Samples = nil
	r.PSA.Samples = nil
}

// resolvedOptions are AuditOptions with every default applied
type resolvedOptions struct {
	permutations      int
	bootstrap         int
	psaDraws          int
	psaConcentration  float64
	seed              int64
	stratumKey        string
	tornadoAlphaFrac  float64
	tornadoBaselinePP float64
	keepSamples       bool
}

func resolveOptions(o AuditOptions, cfg config.AnalysisConfig) resolvedOptions {
	r := resolvedOptions{
		permutations:      cfg.Permutations,
		bootstrap:         cfg.BootstrapResample,
		psaDraws:          cfg.PSADraws,
		psaConcentration:  cfg.PSAConcentration,
		seed:              cfg.Seed,
		stratumKey:        cfg.StratumKey,
		tornadoAlphaFrac:  cfg.TornadoAlphaFrac,
		tornadoBaselinePP: cfg.TornadoBaselinePP,
		keepSamples:       o.KeepSamples,
	}
	if o.Permutations > 0 {
		r.permutations = o.Permutations
	}
	if o.Bootstrap > 0 {
		r.bootstrap = o.Bootstrap
	}
	if o.PSADraws > 0 {
		r.psaDraws = o.PSADraws
	}
	if o.PSAConcentration > 0 {
		r.psaConcentration = o.PSAConcentration
	}
	if o.Seed != nil {
		r.seed = *o.Seed
	}
	if o.StratumKey != nil {
		r.stratumKey = *o.StratumKey
	}
	if o.TornadoAlphaFrac != nil {
		r.tornadoAlphaFrac = *o.TornadoAlphaFrac
	}
	if o.TornadoBaselinePP != nil {
		r.tornadoBaselinePP = *o.TornadoBaselinePP
	}
	return r
}

// chooseSelection resolves S* for the observed impact and the rule the
// bootstrap applies inside each resample.
func chooseSelection(impact *excess.Impact, req AuditRequest) (string, *float64, excess.Selection, cutoff.Rule) {
	cutN := req.Params.CutN
	switch {
	case len(req.Selection) > 0:
		sel := excess.NewSelection(req.Selection...)
		return SelectionExplicit, nil, sel, cutoff.Fixed(sel)
	case req.Cutoff != nil:
		s := *req.Cutoff
		return SelectionCutoff, &s, impact.SelectByCutoff(s, cutN), cutoff.AtScore(s, cutN)
	default:
		s, sel, ok := cutoff.Select(impact, cutN)
		if !ok {
			return SelectionElbow, nil, sel, nil
		}
		return SelectionElbow, &s, sel, nil
	}
}
