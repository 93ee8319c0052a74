package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/internal/models"
)

func TestGradeRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	grades := []*models.Grade{
		{StudentID: "st-1", Subject: "Mathematics", Assignment: "Quiz 1", Score: 85, MaxScore: 100, Letter: "A", Term: "2026-1", RecordedBy: "acc-1"},
		{StudentID: "st-2", Subject: "Mathematics", Assignment: "Quiz 1", Score: 42, MaxScore: 100, Letter: "C", Term: "2026-1", RecordedBy: "acc-1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateBatch(context.Background(), grades))
	require.NotEmpty(t, grades[0].ID)
	require.False(t, grades[0].CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	grades := []*models.Grade{
		{StudentID: "st-1", Subject: "Mathematics", Score: 85, MaxScore: 100, Letter: "A"},
		{StudentID: "st-2", Subject: "Mathematics", Score: 42, MaxScore: 100, Letter: "C"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), grades)
	require.Error(t, err)
	require.Contains(t, err.Error(), "st-2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateForSubmission(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	grade := &models.Grade{ID: "g-1", StudentID: "st-1", Subject: "Mathematics", Score: 85, MaxScore: 100, Letter: "A", Term: "2026-1", RecordedBy: "acc-1"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2, grade_id = $3")).
		WithArgs("sub-1", models.SubmissionStatusGraded, "g-1", sqlmock.AnyArg(), models.SubmissionStatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateForSubmission(context.Background(), grade, "sub-1"))
	require.False(t, grade.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateForSubmissionAlreadyGraded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	grade := &models.Grade{ID: "g-1", StudentID: "st-1", Subject: "Mathematics", Score: 85, MaxScore: 100, Letter: "A", Term: "2026-1", RecordedBy: "acc-1"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2, grade_id = $3")).
		WithArgs("sub-1", models.SubmissionStatusGraded, "g-1", sqlmock.AnyArg(), models.SubmissionStatusSubmitted).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateForSubmission(context.Background(), grade, "sub-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("SELECT id, student_id, submission_id").
		WithArgs("g-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "g-missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
