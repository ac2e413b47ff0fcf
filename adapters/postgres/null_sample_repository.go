package postgres

import (
	"context"
	"fmt"

	"globalsig/domain/core"
	"globalsig/ports"

	"github.com/jmoiron/sqlx"
)

// nullSampleRepository stores null-hypothesis q0 samples as (mass, q0) rows
type nullSampleRepository struct {
	db    *sqlx.DB
	table string
}

// NullSampleRepository reads and writes per-mass null samples
type NullSampleRepository interface {
	ports.NullSampleSource
	SaveNullSample(ctx context.Context, mass int, sample []float64) error
}

// NewNullSampleRepository creates a repository over the given table
func NewNullSampleRepository(db *sqlx.DB, table string) NullSampleRepository {
	return &nullSampleRepository{db: db, table: table}
}

type nullRow struct {
	Mass int     `db:"mass"`
	Q0   float64 `db:"q0"`
}

// ReadNullSamples groups the table rows by mass
func (r *nullSampleRepository) ReadNullSamples(ctx context.Context) (map[int][]float64, error) {
	quoted, err := quoteTable(r.table)
	if err != nil {
		return nil, err
	}

	var rows []nullRow
	if err := r.db.SelectContext(ctx, &rows, fmt.Sprintf(`SELECT mass, q0 FROM %s ORDER BY mass`, quoted)); err != nil {
		return nil, fmt.Errorf("failed to read null samples from %s: %w", r.table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: table %s is empty", core.ErrMissingNullDistribution, r.table)
	}

	out := make(map[int][]float64)
	for _, row := range rows {
		out[row.Mass] = append(out[row.Mass], row.Q0)
	}
	return out, nil
}

// SaveNullSample replaces the stored sample of one mass
func (r *nullSampleRepository) SaveNullSample(ctx context.Context, mass int, sample []float64) error {
	quoted, err := quoteTable(r.table)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE mass = $1`, quoted), mass); err != nil {
		return fmt.Errorf("failed to clear mass %d: %w", mass, err)
	}
	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(`INSERT INTO %s (mass, q0) VALUES ($1, $2)`, quoted))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range sample {
		if _, err := stmt.ExecContext(ctx, mass, v); err != nil {
			return fmt.Errorf("failed to insert null sample for mass %d: %w", mass, err)
		}
	}
	return tx.Commit()
}
