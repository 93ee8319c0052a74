package repository

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/pkg/database"
)

func newRepoMock(t *testing.T) (*database.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	wrapped := database.Wrap(sqlx.NewDb(db, "sqlmock"), database.RetryConfig{Attempts: 1})
	return wrapped, mock, func() { db.Close() }
}

func TestStudentRepositoryEnroll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET enrolled_count = enrolled_count + 1")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET class_id = $2")).
		WithArgs("st-1", "class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Enroll(context.Background(), "st-1", "class-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryEnrollFullClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET enrolled_count = enrolled_count + 1")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), "st-1", "class-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUnenroll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET enrolled_count = GREATEST(enrolled_count - 1, 0)")).
		WithArgs("class-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET class_id = NULL")).
		WithArgs("st-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Unenroll(context.Background(), "st-1", "class-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRetriesDroppedConnection(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	db := database.Wrap(sqlx.NewDb(raw, "sqlmock"), database.RetryConfig{Attempts: 2, Delay: time.Millisecond})
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(27))

	count, err := repo.CountByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 27, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCountByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(27))

	count, err := repo.CountByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 27, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
