package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

var (
	_ ports.ObservationSource = (*ObservationRepository)(nil)
	_ ports.AuditRunStore     = (*ObservationRepository)(nil)
)

// ObservationRepository reads observation tables and baselines, and stores
// audit reports.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

type observationRow struct {
	Period   string          `db:"period"`
	EntityID string          `db:"entity_id"`
	N        int             `db:"n"`
	NC       int             `db:"nc"`
	Score    sql.NullFloat64 `db:"score"`
	Strata   []byte          `db:"strata"`
}

type baselineRow struct {
	Rate sql.NullFloat64 `db:"rate"`
	N    sql.NullInt64   `db:"n"`
	NC   sql.NullInt64   `db:"nc"`
}

type runRow struct {
	ID        string    `db:"id"`
	Period    string    `db:"period"`
	CreatedAt time.Time `db:"created_at"`
	Report    []byte    `db:"report"`
}

// LoadPeriod returns the observations of period ordered by entity id, and
// the stored baseline. A period without a baseline row uses the pooled rate.
func (r *ObservationRepository) LoadPeriod(ctx context.Context, period string) (*audit.ObservationTable, audit.Baseline, error) {
	var rows []observationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT period, entity_id, n, nc, score, strata
		FROM observations
		WHERE period = $1
		ORDER BY entity_id`, period)
	if err != nil {
		return nil, 0, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to query observations: %w", err))
	}
	if len(rows) == 0 {
		return nil, 0, errors.NotFound(fmt.Sprintf("observations for period %q", period))
	}

	table, err := toTable(period, rows)
	if err != nil {
		return nil, 0, err
	}

	var b baselineRow
	err = r.db.GetContext(ctx, &b, `SELECT rate, n, nc FROM baselines WHERE period = $1`, period)
	switch {
	case err == sql.ErrNoRows:
		return table, audit.Baseline(table.PooledRate()), nil
	case err != nil:
		return nil, 0, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to query baseline: %w", err))
	}

	baseline, err := b.baseline()
	if err != nil {
		return nil, 0, err
	}
	return table, baseline, nil
}

// SaveObservations upserts every row of table under table.Period.
func (r *ObservationRepository) SaveObservations(ctx context.Context, table *audit.ObservationTable) error {
	if err := table.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	defer tx.Rollback()

	for _, row := range fromTable(table) {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO observations (period, entity_id, n, nc, score, strata)
			VALUES (:period, :entity_id, :n, :nc, :score, :strata)
			ON CONFLICT (period, entity_id) DO UPDATE
			SET n = EXCLUDED.n, nc = EXCLUDED.nc, score = EXCLUDED.score, strata = EXCLUDED.strata`, row)
		if err != nil {
			return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to save observation %s: %w", row.EntityID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return nil
}

// SaveBaseline stores p_BR for period
func (r *ObservationRepository) SaveBaseline(ctx context.Context, period string, baseline audit.Baseline) error {
	if err := baseline.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO baselines (period, rate) VALUES ($1, $2)
		ON CONFLICT (period) DO UPDATE SET rate = EXCLUDED.rate, n = NULL, nc = NULL`,
		period, baseline.Rate())
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to save baseline: %w", err))
	}
	return nil
}

// SaveRun inserts a finished audit report
func (r *ObservationRepository) SaveRun(ctx context.Context, run ports.StoredRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_runs (id, period, created_at, report) VALUES ($1, $2, $3, $4)`,
		run.ID.String(), run.Period, run.CreatedAt.Time(), []byte(run.Report))
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to save audit run: %w", err))
	}
	return nil
}

// GetRun loads a stored audit report
func (r *ObservationRepository) GetRun(ctx context.Context, id core.RunID) (*ports.StoredRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `SELECT id, period, created_at, report FROM audit_runs WHERE id = $1`, id.String())
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(fmt.Sprintf("audit run %s", id))
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, fmt.Errorf("failed to get audit run: %w", err))
	}
	return &ports.StoredRun{
		ID:        core.RunID(row.ID),
		Period:    row.Period,
		CreatedAt: core.NewTimestamp(row.CreatedAt.UTC()),
		Report:    json.RawMessage(row.Report),
	}, nil
}

func toTable(period string, rows []observationRow) (*audit.ObservationTable, error) {
	obs := make([]audit.Observation, len(rows))
	for i, row := range rows {
		obs[i] = audit.Observation{
			EntityID: core.EntityID(row.EntityID),
			N:        row.N,
			NC:       row.NC,
		}
		if row.Score.Valid {
			s := row.Score.Float64
			obs[i].Score = &s
		}
		if len(row.Strata) > 0 {
			var strata map[string]string
			if err := json.Unmarshal(row.Strata, &strata); err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("entity %s: malformed strata: %v", row.EntityID, err))
			}
			if len(strata) > 0 {
				obs[i].Strata = strata
			}
		}
	}

	table := audit.NewObservationTable(period, obs)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func fromTable(table *audit.ObservationTable) []observationRow {
	rows := make([]observationRow, len(table.Rows))
	for i, o := range table.Rows {
		strata := []byte("{}")
		if len(o.Strata) > 0 {
			// map[string]string always marshals
			strata, _ = json.Marshal(o.Strata)
		}
		rows[i] = observationRow{
			Period:   table.Period,
			EntityID: o.EntityID.String(),
			N:        o.N,
			NC:       o.NC,
			Strata:   strata,
		}
		if o.Score != nil {
			rows[i].Score = sql.NullFloat64{Float64: *o.Score, Valid: true}
		}
	}
	return rows
}

// baseline prefers the stored rate, then NC/N.
func (b baselineRow) baseline() (audit.Baseline, error) {
	var p audit.Baseline
	switch {
	case b.Rate.Valid:
		p = audit.Baseline(b.Rate.Float64)
	case b.N.Valid && b.NC.Valid && b.N.Int64 > 0:
		p = audit.Baseline(float64(b.NC.Int64) / float64(b.N.Int64))
	default:
		return 0, errors.InvalidInput("baseline row has neither a rate nor counts")
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return p, nil
}
