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

// AssignmentRepository manages persistence for assignments.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns assignments matching the provided filters.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	base := "FROM assignments a LEFT JOIN teachers t ON t.id = a.teacher_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("a.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"title":      "a.title",
		"due_date":   "a.due_date",
		"created_at": "a.created_at",
	}, "a.due_date")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT a.id, a.class_id, a.teacher_id, a.subject, a.title, a.description, a.due_date, a.max_score, a.status, a.created_at, a.updated_at,
        t.full_name AS teacher_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// FindByID fetches an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	var assignment models.Assignment
	query := `SELECT id, class_id, teacher_id, subject, title, description, due_date, max_score, status, created_at, updated_at
        FROM assignments WHERE id = $1`
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	query := `INSERT INTO assignments (id, class_id, teacher_id, subject, title, description, due_date, max_score, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(ctx, query, assignment.ID, assignment.ClassID, assignment.TeacherID,
		assignment.Subject, assignment.Title, assignment.Description, assignment.DueDate,
		assignment.MaxScore, assignment.Status, assignment.CreatedAt, assignment.UpdatedAt); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update persists mutable assignment fields.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	query := `UPDATE assignments SET subject = $2, title = $3, description = $4, due_date = $5, max_score = $6, status = $7, updated_at = $8
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, assignment.ID, assignment.Subject, assignment.Title,
		assignment.Description, assignment.DueDate, assignment.MaxScore, assignment.Status, assignment.UpdatedAt); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment row.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// CountSubmissions returns how many submissions reference the assignment.
func (r *AssignmentRepository) CountSubmissions(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM submissions WHERE assignment_id = $1", id); err != nil {
		return 0, fmt.Errorf("count submissions by assignment: %w", err)
	}
	return count, nil
}
