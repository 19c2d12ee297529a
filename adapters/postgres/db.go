// Package postgres stores period observations, baselines and finished
// audit reports.
package postgres

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/gustavo-detarso/atestmed-defender-sub000/adapters/postgres/migrations"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Open connects to url and applies pending migrations.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	if err := migrations.NewMigrator(db).Up(ctx); err != nil {
		db.Close()
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}
	log.Printf("[Postgres] Connected and migrated")
	return db, nil
}
