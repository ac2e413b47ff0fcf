package postgres

import (
	"context"
	"fmt"

	"globalsig/domain/toys"
	"globalsig/ports"

	"github.com/jmoiron/sqlx"
)

// toyRepository reads toy fit records from a PostgreSQL table
type toyRepository struct {
	db    *sqlx.DB
	table string
}

// NewToyRepository creates a toy source over the given table
func NewToyRepository(db *sqlx.DB, table string) ports.ToySource {
	return &toyRepository{db: db, table: table}
}

// ReadToys loads every row of the table
func (r *toyRepository) ReadToys(ctx context.Context) ([]toys.ToyRecord, error) {
	quoted, err := quoteTable(r.table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT
		toy_index, COALESCE(seed, 0) AS seed, mass, q0, muhat, COALESCE(mu_range, 0) AS mu_range,
		uncond_status, cond_status,
		COALESCE(uncond_covqual, 0) AS uncond_covqual, COALESCE(cond_covqual, 0) AS cond_covqual
	FROM %s ORDER BY toy_index, mass`, quoted)

	var records []toys.ToyRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to read toys from %s: %w", r.table, err)
	}
	return records, nil
}

// InsertToys stores records in one transaction
func InsertToys(ctx context.Context, db *sqlx.DB, table string, records []toys.ToyRecord) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (
		toy_index, seed, mass, q0, muhat, mu_range, uncond_status, cond_status, uncond_covqual, cond_covqual
	) VALUES (
		:toy_index, :seed, :mass, :q0, :muhat, :mu_range, :uncond_status, :cond_status, :uncond_covqual, :cond_covqual
	)`, quoted)

	for _, rec := range records {
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("failed to insert toy %s: %w", rec.Key(), err)
		}
	}
	return tx.Commit()
}
