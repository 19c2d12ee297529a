package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/excel"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/postgres"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/postgres/migrations"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/report"
	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/rng"
	"github.com/gustavo-detarso/atestmed-defender-sub000/app"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/config"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "atestmed-cli",
		Short:         "Excess-impact audit of examiner outcomes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newImportCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runFlags are the inputs of the run command
type runFlags struct {
	file         string
	sheet        string
	period       string
	databaseURL  string
	baseline     float64
	format       string
	alpha        float64
	minN         int
	cutN         int
	cutoff       float64
	selection    []string
	seed         int64
	permutations int
	bootstrap    int
	psaDraws     int
	stratumKey   string
	keepSamples  bool
	save         bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Audit one period and print the report",
		Long: `Audit one period of observations read from an xlsx/csv export or from
Postgres, and print the report to stdout.

Defaults come from the environment (ALPHA, MIN_N, CUT_N, PERMUTATIONS, ...);
flags override them. Without --select or --cutoff, S* is taken at the elbow
of the cumulative-impact curve.

Examples:
  atestmed-cli run --file obs.xlsx --period 2024-Q1 --baseline 0.10 --format markdown
  atestmed-cli run --db postgres://localhost/atestmed --period 2024-Q1 --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), cmd, cfg, f, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.file, "file", "", "Observation file (.xlsx or .csv); defaults to OBSERVATION_FILE")
	fl.StringVar(&f.sheet, "sheet", "", "Worksheet name (xlsx only)")
	fl.StringVar(&f.period, "period", "", "Reporting period; defaults to PERIOD")
	fl.StringVar(&f.databaseURL, "db", "", "Postgres URL; defaults to DATABASE_URL when no file is given")
	fl.Float64Var(&f.baseline, "baseline", 0, "Baseline rate p_BR (file source only; pooled rate when unset)")
	fl.StringVar(&f.format, "format", report.FormatMarkdown, "Output format: markdown|html|json")
	fl.Float64Var(&f.alpha, "alpha", 0, "Queue-capacity factor alpha")
	fl.IntVar(&f.minN, "min-n", 0, "Minimum N for an entity to count")
	fl.IntVar(&f.cutN, "cut-n", 0, "Minimum N for an entity to be selectable")
	fl.Float64Var(&f.cutoff, "cutoff", 0, "Select entities scoring at least this much")
	fl.StringSliceVar(&f.selection, "select", nil, "Explicit entity ids forming S*")
	fl.Int64Var(&f.seed, "seed", 0, "Random seed for deterministic operations")
	fl.IntVar(&f.permutations, "permutations", 0, "Permutation replicas")
	fl.IntVar(&f.bootstrap, "bootstrap", 0, "Bootstrap resamples")
	fl.IntVar(&f.psaDraws, "psa-draws", 0, "PSA draws")
	fl.StringVar(&f.stratumKey, "stratum-key", "", "Stratum column for CMH and the stratified permutation")
	fl.BoolVar(&f.keepSamples, "keep-samples", false, "Include Monte Carlo samples in JSON output")
	fl.BoolVar(&f.save, "save", false, "Store the report in Postgres")

	return cmd
}

// runAudit resolves the source, runs the audit and writes the report to w.
func runAudit(ctx context.Context, cmd *cobra.Command, cfg *config.Config, f runFlags, w io.Writer) error {
	logger := internal.NewDefaultLogger().WithComponent("CLI")
	changed := cmd.Flags().Changed

	if f.file == "" && f.databaseURL == "" {
		f.file = cfg.Data.ObservationFile
	}
	if f.databaseURL == "" {
		f.databaseURL = cfg.Database.URL
	}
	if f.period == "" {
		f.period = cfg.Data.Period
	}
	if f.sheet == "" {
		f.sheet = cfg.Data.Sheet
	}

	var (
		source ports.ObservationSource
		store  ports.AuditRunStore
	)
	if f.file != "" {
		baseline := cfg.Data.Baseline
		if changed("baseline") {
			baseline = &f.baseline
		}
		source = excel.NewObservationReader(f.file, f.sheet, excel.DefaultColumnMapping(), baseline)
		logger.Info("Reading observations from %s", f.file)
	}
	if f.databaseURL != "" && (source == nil || f.save) {
		db, err := postgres.Open(ctx, f.databaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := postgres.NewObservationRepository(db)
		if source == nil {
			source = repo
			logger.Info("Reading period %q from Postgres", f.period)
		}
		if f.save {
			store = repo
		}
	}
	if source == nil {
		return errors.ConfigInvalid("no observation source: pass --file or --db")
	}
	if f.save && store == nil {
		return errors.ConfigInvalid("--save needs a database URL")
	}

	svc := app.NewAuditService(rng.New(), cfg.Analysis, store, internal.NewDefaultLogger())
	rep, err := svc.RunPeriod(ctx, source, f.period, buildRequest(cfg.Analysis, f, changed))
	if err != nil {
		return err
	}
	return writeReport(w, rep, f.format)
}

// buildRequest applies the flags that were set on top of the configured
// analysis defaults.
func buildRequest(a config.AnalysisConfig, f runFlags, changed func(string) bool) app.AuditRequest {
	req := app.AuditRequest{
		Params: audit.ImpactParameters{Alpha: a.Alpha, MinN: a.MinN, CutN: a.CutN},
		Options: app.AuditOptions{
			Permutations: f.permutations,
			Bootstrap:    f.bootstrap,
			PSADraws:     f.psaDraws,
			KeepSamples:  f.keepSamples,
		},
	}
	if changed("alpha") {
		req.Params.Alpha = f.alpha
	}
	if changed("min-n") {
		req.Params.MinN = f.minN
	}
	if changed("cut-n") {
		req.Params.CutN = f.cutN
	}
	if changed("cutoff") {
		c := f.cutoff
		req.Cutoff = &c
	}
	for _, id := range f.selection {
		if parsed, err := core.ParseEntityID(id); err == nil {
			req.Selection = append(req.Selection, parsed)
		}
	}
	if changed("seed") {
		s := f.seed
		req.Options.Seed = &s
	}
	if changed("stratum-key") {
		k := f.stratumKey
		req.Options.StratumKey = &k
	}
	return req
}

func writeReport(w io.Writer, rep *app.AuditReport, format string) error {
	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	body, _, err := report.NewRenderer().Render(rep, strings.ToLower(format))
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func newImportCmd() *cobra.Command {
	var (
		file        string
		sheet       string
		period      string
		databaseURL string
		baseline    float64
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load an observation file into Postgres",
		Long: `Read an xlsx/csv export and upsert its rows for a period into Postgres.
When --baseline is given it is stored as the period's p_BR.

Example: atestmed-cli import --file obs.csv --period 2024-Q1 --baseline 0.10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" || period == "" {
				return errors.ConfigInvalid("--file and --period are required")
			}
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.ConfigInvalid("--db or DATABASE_URL is required")
			}

			ctx := cmd.Context()
			table, _, err := excel.NewObservationReader(file, sheet, excel.DefaultColumnMapping(), nil).LoadPeriod(ctx, period)
			if err != nil {
				return err
			}
			table.Period = period

			db, err := postgres.Open(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := postgres.NewObservationRepository(db)
			if err := repo.SaveObservations(ctx, table); err != nil {
				return err
			}
			if cmd.Flags().Changed("baseline") {
				if err := repo.SaveBaseline(ctx, period, audit.Baseline(baseline)); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d observations for %s\n", table.Len(), period)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Observation file (.xlsx or .csv)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet name (xlsx only)")
	cmd.Flags().StringVar(&period, "period", "", "Reporting period the rows belong to")
	cmd.Flags().StringVar(&databaseURL, "db", "", "Postgres URL; defaults to DATABASE_URL")
	cmd.Flags().Float64Var(&baseline, "baseline", 0, "Baseline rate p_BR to store for the period")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.ConfigInvalid("--db or DATABASE_URL is required")
			}
			db, err := postgres.Open(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			files, err := migrations.NewMigrator(db).Files()
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", f.Version, f.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "db", "", "Postgres URL; defaults to DATABASE_URL")
	return cmd
}
