package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/pkg/database"
)

// SubmissionRepository manages persistence for submissions.
type SubmissionRepository struct {
	db *database.DB
}

// NewSubmissionRepository constructs a SubmissionRepository.
func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// List returns submissions matching the provided filters.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	base := `FROM submissions sub
        JOIN assignments a ON a.id = sub.assignment_id
        JOIN students s ON s.id = sub.student_id
        LEFT JOIN grades g ON g.id = sub.grade_id`
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("sub.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("sub.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("sub.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"submitted_at": "sub.submitted_at",
		"created_at":   "sub.created_at",
	}, "sub.created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT sub.id, sub.assignment_id, sub.student_id, sub.text, sub.file_locator, sub.status, sub.grade_id, sub.submitted_at, sub.created_at, sub.updated_at,
        a.title AS assignment_title, a.max_score, s.full_name AS student_name, g.score, g.letter
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// FindByID fetches a submission by ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	var submission models.Submission
	query := `SELECT id, assignment_id, student_id, text, file_locator, status, grade_id, submitted_at, created_at, updated_at
        FROM submissions WHERE id = $1`
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the unique submission for the pair, or
// sql.ErrNoRows when none exists.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	var submission models.Submission
	query := `SELECT id, assignment_id, student_id, text, file_locator, status, grade_id, submitted_at, created_at, updated_at
        FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Create inserts a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	submission.CreatedAt = now
	submission.UpdatedAt = now
	query := `INSERT INTO submissions (id, assignment_id, student_id, text, file_locator, status, grade_id, submitted_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, submission.ID, submission.AssignmentID, submission.StudentID,
		submission.Text, submission.FileLocator, submission.Status, submission.GradeID,
		submission.SubmittedAt, submission.CreatedAt, submission.UpdatedAt); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// Overwrite replaces the content of an existing submission during a
// policy-permitted resubmission.
func (r *SubmissionRepository) Overwrite(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()
	query := `UPDATE submissions SET text = $2, file_locator = $3, status = $4, submitted_at = $5, updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, submission.ID, submission.Text, submission.FileLocator,
		submission.Status, submission.SubmittedAt, submission.UpdatedAt); err != nil {
		return fmt.Errorf("overwrite submission: %w", err)
	}
	return nil
}
