package migration

import (
	"context"
	"errors"
	"testing"

	apperrors "globalsig/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestRunner_CreatesTablesAndIndex(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "scan_toys"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "null_q0"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS "idx_null_q0_mass" ON "null_q0"`).WillReturnResult(sqlmock.NewResult(0, 0))

	runner := NewRunner("scan_toys", "null_q0")
	require.NoError(t, runner.Run(context.Background(), db))
	assert.Equal(t, "1.0.0", runner.Version())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_SkipsEmptyTables(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "scan_toys"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewRunner("scan_toys", "").Run(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "scan_toys"`).WillReturnError(errors.New("permission denied"))

	err := NewRunner("scan_toys", "null_q0").Run(context.Background(), db)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
}
