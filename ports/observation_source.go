package ports

import (
	"context"
	"encoding/json"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
)

// ObservationSource loads the observation table and the national baseline
// for one reporting period.
type ObservationSource interface {
	LoadPeriod(ctx context.Context, period string) (*audit.ObservationTable, audit.Baseline, error)
}

// StoredRun is a persisted audit report.
type StoredRun struct {
	ID        core.RunID      `json:"id" db:"id"`
	Period    string          `json:"period" db:"period"`
	CreatedAt core.Timestamp  `json:"created_at" db:"created_at"`
	Report    json.RawMessage `json:"report" db:"report"`
}

// AuditRunStore persists finished audit reports
type AuditRunStore interface {
	SaveRun(ctx context.Context, run StoredRun) error
	GetRun(ctx context.Context, id core.RunID) (*StoredRun, error)
}
