package app

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/config"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/cutoff"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/montecarlo"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/significance"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

// AuditService runs the complete excess-impact audit of one table
type AuditService struct {
	calc        *excess.Calculator
	battery     *significance.EntityBattery
	cmh         *significance.CMHTester
	permutation *montecarlo.PermutationTester
	bootstrap   *montecarlo.Bootstrap
	sensitivity *montecarlo.Sensitivity
	psa         *montecarlo.PSA
	store       ports.AuditRunStore
	defaults    config.AnalysisConfig
	logger      *internal.Logger
}

// NewAuditService creates an audit service. store may be nil, in which case
// reports are not persisted.
func NewAuditService(rngPort ports.RNGPort, cfg config.AnalysisConfig, store ports.AuditRunStore, logger *internal.Logger) *AuditService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	binomial := significance.NewBinomialTester()
	if cfg.WilsonZ > 0 {
		binomial.Z = cfg.WilsonZ
	}
	runner := montecarlo.NewRunner(rngPort, cfg.Workers)

	return &AuditService{
		calc:        excess.NewCalculator(),
		battery:     significance.NewEntityBattery(binomial),
		cmh:         significance.NewCMHTester(),
		permutation: montecarlo.NewPermutationTester(runner),
		bootstrap:   montecarlo.NewBootstrap(runner),
		sensitivity: montecarlo.NewSensitivity(),
		psa:         montecarlo.NewPSA(runner),
		store:       store,
		defaults:    cfg,
		logger:      logger.WithComponent("AuditService"),
	}
}

// Defaults returns the analysis defaults applied to requests
func (s *AuditService) Defaults() config.AnalysisConfig {
	return s.defaults
}

// RunPeriod loads period from source and audits it with the loaded baseline.
func (s *AuditService) RunPeriod(ctx context.Context, source ports.ObservationSource, period string, req AuditRequest) (*AuditReport, error) {
	table, baseline, err := source.LoadPeriod(ctx, period)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load period %q", period)
	}
	req.Table = table
	req.Baseline = baseline
	return s.Run(ctx, req)
}

// Run validates the request, computes impact and S*, runs every test and
// stores the report when a store is configured. Invalid parameters fail
// before any computation.
func (s *AuditService) Run(ctx context.Context, req AuditRequest) (*AuditReport, error) {
	start := time.Now()
	if req.Table == nil {
		return nil, errors.InvalidInput("audit request has no observation table")
	}
	if err := req.Table.Validate(); err != nil {
		return nil, err
	}
	if req.Cutoff != nil && len(req.Selection) > 0 {
		return nil, errors.InvalidParameter("selection and cutoff are mutually exclusive")
	}
	opts := resolveOptions(req.Options, s.defaults)

	impact, err := s.calc.Compute(req.Table, req.Baseline, req.Params)
	if err != nil {
		return nil, err
	}

	mode, cut, sel, rule := chooseSelection(impact, req)
	report := &AuditReport{
		RunID:          core.NewRunID(),
		Period:         req.Table.Period,
		CreatedAt:      core.Now(),
		Baseline:       impact.Baseline,
		Params:         req.Params,
		SelectionMode:  mode,
		Cutoff:         cut,
		Selected:       sel.IDs(),
		ImpactTotal:    impact.Total,
		ImpactSelected: impact.SelectedImpact(sel),
		Weight:         impact.Weight(sel),
		Curve:          cutoff.Curve(impact, req.Params.CutN),
	}
	report.Warnings.Merge(impact.Warnings)
	s.logger.Info("Run %s: %d entities, total impact %d, %d selected (%s), w=%.4f",
		report.RunID, req.Table.Len(), impact.Total, len(report.Selected), mode, report.Weight)

	entities, err := s.battery.Run(impact, sel)
	if err != nil {
		return nil, err
	}
	report.Entities = entities.Verdicts
	report.Rho = entities.Rho
	report.Warnings.Merge(entities.Warnings)

	s.runCMH(report, impact, sel, req.Table, opts.stratumKey)

	tornado, err := s.sensitivity.Tornado(req.Table, req.Baseline, req.Params, sel, opts.tornadoAlphaFrac, opts.tornadoBaselinePP)
	if err != nil {
		return nil, err
	}
	report.Tornado = tornado

	if err := s.runMonteCarlo(ctx, report, impact, sel, rule, req, opts); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.save(ctx, report); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Run %s finished in %s (perm p=%.4g, warnings=%v)",
		report.RunID, time.Since(start).Round(time.Millisecond), report.Permutation.PValue, report.Warnings)
	return report, nil
}

func (s *AuditService) runCMH(report *AuditReport, impact *excess.Impact, sel excess.Selection, table *audit.ObservationTable, key string) {
	if key == "" || !hasStratumKey(table, key) {
		report.Warnings.Add(stats.WarningNoStratumKey)
		s.logger.Debug("Run %s: CMH skipped, stratum key %q not present", report.RunID, key)
		return
	}
	res := s.cmh.Test(significance.ImpactStrata(impact, sel, key))
	report.CMH = &res
	report.StratumKey = key
	report.Warnings.Merge(res.Warnings)
}

// runMonteCarlo runs the permutation, bootstrap and PSA stages concurrently.
// Each stage owns its streams, so the outcome does not depend on scheduling.
func (s *AuditService) runMonteCarlo(ctx context.Context, report *AuditReport, impact *excess.Impact, sel excess.Selection, rule cutoff.Rule, req AuditRequest, opts resolvedOptions) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := s.permutation.Test(gctx, impact, sel, montecarlo.PermutationConfig{
			Replicas:   opts.permutations,
			Seed:       opts.seed,
			StratumKey: report.StratumKey,
		})
		report.Permutation = res
		return err
	})
	g.Go(func() error {
		res, err := s.bootstrap.Estimate(gctx, req.Table, req.Baseline, req.Params, montecarlo.BootstrapConfig{
			Resamples: opts.bootstrap,
			Seed:      opts.seed,
			Rule:      rule,
		})
		report.Bootstrap = res
		return err
	})
	g.Go(func() error {
		res, err := s.psa.Run(gctx, req.Table, req.Baseline, req.Params, sel, montecarlo.PSAConfig{
			Draws:         opts.psaDraws,
			Seed:          opts.seed,
			Concentration: opts.psaConcentration,
		})
		report.PSA = res
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	report.Warnings.Merge(report.Bootstrap.Warnings)
	report.Warnings.Merge(report.PSA.Warnings)
	if !opts.keepSamples {
		report.TrimSamples()
	}
	return nil
}

func (s *AuditService) save(ctx context.Context, report *AuditReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode audit report")
	}
	err = s.store.SaveRun(ctx, ports.StoredRun{
		ID:        report.RunID,
		Period:    report.Period,
		CreatedAt: report.CreatedAt,
		Report:    body,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store run %s", report.RunID)
	}
	return nil
}

func hasStratumKey(table *audit.ObservationTable, key string) bool {
	for _, row := range table.Rows {
		if row.Stratum(key) != "" {
			return true
		}
	}
	return false
}
