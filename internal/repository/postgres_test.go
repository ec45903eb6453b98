package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newMockRepo(t *testing.T) (*SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, driverPostgres), mock
}

func TestRebind(t *testing.T) {
	pg := NewWithDB(nil, driverPostgres)
	lite := NewWithDB(nil, driverSQLite)

	q := "SELECT * FROM t WHERE a = ? AND b = ? OR c = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 OR c = $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestPostgres_GetConfig(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM config_records\s+WHERE kind = \$1`).
		WithArgs("dbr-settings").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "version", "payload", "created_at"}).
			AddRow("dbr-settings", 3, `{"maximumDBRPercentage":65}`, now))

	rec, err := repo.GetConfig(context.Background(), domain.ConfigDBR)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)
	assert.Equal(t, domain.ConfigDBR, rec.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetConfigNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM config_records\s+WHERE kind = \$1`).
		WithArgs("scoring-rules").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "version", "payload", "created_at"}))

	_, err := repo.GetConfig(context.Background(), domain.ConfigScoring)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveConfigIncrementsVersion(t *testing.T) {
	repo, mock := newMockRepo(t)
	payload := json.RawMessage(`{"maximumDBRPercentage":60}`)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM config_records WHERE kind = $1")).
		WithArgs("dbr-settings").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_records (kind, version, payload, created_at) VALUES ($1, $2, $3, $4)")).
		WithArgs("dbr-settings", 3, string(payload), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := repo.SaveConfig(context.Background(), domain.ConfigDBR, payload)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveConfigConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_records")).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "config_records_pkey"`))
	mock.ExpectRollback()

	_, err := repo.SaveConfig(context.Background(), domain.ConfigDBR, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindApplicantUsesNumberedPlaceholders(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 OR national_id = $2 OR email = $3")).
		WithArgs("A@Example.com", "A@Example.com", "a@example.com", "A@Example.com", "A@Example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "national_id", "full_name", "email", "account_opened_at", "profile", "created_at", "updated_at",
		}))

	_, err := repo.FindApplicant(context.Background(), "A@Example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
