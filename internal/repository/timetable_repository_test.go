package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_snapshots WHERE timetable_id = $1")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_snapshots")).
		WithArgs(sqlmock.AnyArg(), "default", 3, sqlmock.AnyArg(), "admin-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snapshot := &models.TimetableSnapshot{
		TimetableID: "default",
		Payload:     types.JSONText(`[{"time":"8:00-9:00","days":{}}]`),
		SavedBy:     "admin-1",
	}
	require.NoError(t, repo.CreateVersioned(context.Background(), snapshot))
	assert.Equal(t, 3, snapshot.Version)
	assert.NotEmpty(t, snapshot.ID)
	assert.False(t, snapshot.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_snapshots WHERE timetable_id = $1")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_snapshots")).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	err := repo.CreateVersioned(context.Background(), &models.TimetableSnapshot{TimetableID: "default"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert timetable snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRequiresTimetable(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	require.Error(t, repo.CreateVersioned(context.Background(), nil))
	require.Error(t, repo.CreateVersioned(context.Background(), &models.TimetableSnapshot{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "version", "payload", "saved_by", "created_at"}).
		AddRow("snap-2", "default", 2, []byte(`[]`), "admin-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, timetable_id, version, payload, saved_by, created_at FROM timetable_snapshots WHERE timetable_id = $1 ORDER BY version DESC LIMIT 1")).
		WithArgs("default").
		WillReturnRows(rows)

	snapshot, err := repo.Latest(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Version)
	assert.JSONEq(t, `[]`, string(snapshot.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLatestMissing(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery("FROM timetable_snapshots").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Latest(context.Background(), "unknown")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListVersions(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows([]string{"id", "timetable_id", "version", "saved_by", "created_at"}).
		AddRow("snap-2", "default", 2, "admin-1", time.Now()).
		AddRow("snap-1", "default", 1, "admin-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, timetable_id, version, saved_by, created_at FROM timetable_snapshots WHERE timetable_id = $1 ORDER BY version DESC")).
		WithArgs("default").
		WillReturnRows(rows)

	versions, err := repo.ListVersions(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
