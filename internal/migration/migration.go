package migration

import (
	"context"
	"fmt"

	"globalsig/adapters/postgres"
	"globalsig/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the toy and null-sample tables
type MigrationRunner struct {
	version   string
	toyTable  string
	nullTable string
}

// NewRunner creates a migration runner for the given tables
func NewRunner(toyTable, nullTable string) *MigrationRunner {
	return &MigrationRunner{
		version:   "1.0.0",
		toyTable:  toyTable,
		nullTable: nullTable,
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every step is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if r.toyTable != "" {
		if err := postgres.EnsureToyTable(ctx, db, r.toyTable); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to create %s table", r.toyTable), err)
		}
	}

	if r.nullTable != "" {
		if err := postgres.EnsureNullSampleTable(ctx, db, r.nullTable); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to create %s table", r.nullTable), err)
		}
		if err := postgres.EnsureMassIndex(ctx, db, r.nullTable); err != nil {
			return errors.DatabaseError("failed to create indexes", err)
		}
	}

	return nil
}
