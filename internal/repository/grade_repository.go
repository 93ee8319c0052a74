package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/pkg/database"
)

// GradeRepository manages persistence for grade records.
type GradeRepository struct {
	db *database.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *database.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grades matching the provided filters.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	base := "FROM grades g JOIN students s ON s.id = g.student_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("g.student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("g.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Term != "" {
		conditions = append(conditions, fmt.Sprintf("g.term = $%d", len(args)+1))
		args = append(args, filter.Term)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"subject":    "g.subject",
		"score":      "g.score",
		"created_at": "g.created_at",
	}, "g.created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT g.id, g.student_id, g.submission_id, g.subject, g.assignment, g.score, g.max_score, g.letter, g.term, g.feedback, g.recorded_by, g.created_at, g.updated_at,
        s.full_name AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID fetches a grade by ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	var grade models.Grade
	query := `SELECT id, student_id, submission_id, subject, assignment, score, max_score, letter, term, feedback, recorded_by, created_at, updated_at
        FROM grades WHERE id = $1`
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create inserts a single grade row.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	prepareGrade(grade)
	if _, err := r.db.ExecContext(ctx, insertGradeQuery, gradeArgs(grade)...); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// CreateForSubmission inserts the grade and flips the submission from
// SUBMITTED to GRADED in a single transaction, so a crash between the two
// writes can never leave a graded row behind an ungraded submission. The
// UPDATE's WHERE clause guards the one-way transition at the store; zero
// affected rows means another grader won the race and the whole transaction
// rolls back with sql.ErrNoRows.
func (r *GradeRepository) CreateForSubmission(ctx context.Context, grade *models.Grade, submissionID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade submission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prepareGrade(grade)
	if _, err := tx.ExecContext(ctx, insertGradeQuery, gradeArgs(grade)...); err != nil {
		return fmt.Errorf("insert grade: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = $2, grade_id = $3, updated_at = $4
         WHERE id = $1 AND status = $5`,
		submissionID, models.SubmissionStatusGraded, grade.ID, grade.UpdatedAt, models.SubmissionStatusSubmitted)
	if err != nil {
		return fmt.Errorf("mark submission graded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark submission graded: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade submission: %w", err)
	}
	return nil
}

// CreateBatch inserts all grades in one transaction: either every row lands
// or none do.
func (r *GradeRepository) CreateBatch(ctx context.Context, grades []*models.Grade) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, grade := range grades {
		prepareGrade(grade)
		if _, err := tx.ExecContext(ctx, insertGradeQuery, gradeArgs(grade)...); err != nil {
			return fmt.Errorf("insert grade for student %s: %w", grade.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade batch: %w", err)
	}
	return nil
}

const insertGradeQuery = `INSERT INTO grades (id, student_id, submission_id, subject, assignment, score, max_score, letter, term, feedback, recorded_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func prepareGrade(grade *models.Grade) {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
}

func gradeArgs(grade *models.Grade) []interface{} {
	return []interface{}{
		grade.ID, grade.StudentID, grade.SubmissionID, grade.Subject, grade.Assignment,
		grade.Score, grade.MaxScore, grade.Letter, grade.Term, grade.Feedback,
		grade.RecordedBy, grade.CreatedAt, grade.UpdatedAt,
	}
}
