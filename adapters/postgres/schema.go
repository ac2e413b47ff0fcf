package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"globalsig/domain/core"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// quoteTable validates a possibly schema-qualified table name and quotes each part
func quoteTable(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: invalid table name %q", core.ErrInvalidInput, name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}

// EnsureToyTable creates the toy fit table when it does not exist
func EnsureToyTable(ctx context.Context, db *sqlx.DB, table string) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			toy_index INTEGER NOT NULL,
			seed INTEGER,
			mass INTEGER NOT NULL,
			q0 DOUBLE PRECISION NOT NULL,
			muhat DOUBLE PRECISION NOT NULL,
			mu_range DOUBLE PRECISION,
			uncond_status INTEGER NOT NULL,
			cond_status INTEGER NOT NULL,
			uncond_covqual INTEGER,
			cond_covqual INTEGER,
			PRIMARY KEY (toy_index, mass)
		)`, quoted))
	if err != nil {
		return fmt.Errorf("failed to create toy table %s: %w", table, err)
	}
	return nil
}

// EnsureNullSampleTable creates the null-sample table when it does not exist
func EnsureNullSampleTable(ctx context.Context, db *sqlx.DB, table string) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			mass INTEGER NOT NULL,
			q0 DOUBLE PRECISION NOT NULL
		)`, quoted))
	if err != nil {
		return fmt.Errorf("failed to create null-sample table %s: %w", table, err)
	}
	return nil
}

// EnsureMassIndex indexes a table by mass, which every null-sample read groups on
func EnsureMassIndex(ctx context.Context, db *sqlx.DB, table string) error {
	quoted, err := quoteTable(table)
	if err != nil {
		return err
	}
	index := pq.QuoteIdentifier("idx_" + strings.ReplaceAll(table, ".", "_") + "_mass")
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (mass)`, index, quoted)); err != nil {
		return fmt.Errorf("failed to index %s by mass: %w", table, err)
	}
	return nil
}
