package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"globalsig/adapters/postgres"
	"globalsig/adapters/tabular"
	"globalsig/internal/config"
	apperrors "globalsig/internal/errors"
	"globalsig/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const postgresPrefix = "postgres:"

// environment bundles what every command needs
type environment struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	db     *sqlx.DB
}

// connect opens the database lazily on first use
func (e *environment) connect() (*sqlx.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	if e.cfg.Database.URL == "" {
		return nil, apperrors.ConfigInvalid("DATABASE_URL is required for postgres: sources")
	}
	db, err := sqlx.Connect("postgres", e.cfg.Database.URL)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to database", err)
	}
	e.db = db
	return db, nil
}

func (e *environment) close() {
	if e.db != nil {
		e.db.Close()
	}
}

// tableName returns the table of a postgres:<table> reference
func tableName(ref string) (string, bool) {
	if strings.HasPrefix(ref, postgresPrefix) {
		return strings.TrimPrefix(ref, postgresPrefix), true
	}
	return "", false
}

// toySource resolves --toys into a file or database source
func (e *environment) toySource(ref string, defaultMass int) (ports.ToySource, error) {
	if ref == "" {
		return nil, apperrors.InvalidInput("--toys is required")
	}
	if table, ok := tableName(ref); ok {
		db, err := e.connect()
		if err != nil {
			return nil, err
		}
		return postgres.NewToyRepository(db, table), nil
	}
	src := tabular.NewToyFile(ref, e.logger)
	src.DefaultMass = defaultMass
	return src, nil
}

// nullSource resolves --null into files (globs allowed) or a database table
func (e *environment) nullSource(refs []string) (ports.NullSampleSource, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if table, ok := tableName(refs[0]); ok && len(refs) == 1 {
		db, err := e.connect()
		if err != nil {
			return nil, err
		}
		return postgres.NewNullSampleRepository(db, table), nil
	}

	var paths []string
	for _, ref := range refs {
		matches, err := filepath.Glob(ref)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("bad null-sample pattern %q", ref))
		}
		if len(matches) == 0 {
			matches = []string{ref}
		}
		paths = append(paths, matches...)
	}
	return tabular.NewNullSampleFiles(paths, e.logger), nil
}
