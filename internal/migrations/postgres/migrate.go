package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"spotbook/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// RunMigration applies the idempotent schema. Overlap is rejected by the
// bookings_no_overlap exclusion constraint.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	log.Info("Running Postgres migrations")

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed applying schema: %w", err)
	}

	log.Info("All Postgres migrations applied")
	return nil
}
