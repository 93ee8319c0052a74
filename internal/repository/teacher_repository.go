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

// TeacherRepository manages persistence for teacher records.
type TeacherRepository struct {
	db *database.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *database.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching the provided filters.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"full_name":       "full_name",
		"subject":         "subject",
		"employment_date": "employment_date",
		"created_at":      "created_at",
	}, "created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT id, full_name, subject, qualifications, employment_date, active, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	query := `SELECT id, full_name, subject, qualifications, employment_date, active, created_at, updated_at
        FROM teachers WHERE id = $1`
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create inserts a new teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	query := `INSERT INTO teachers (id, full_name, subject, qualifications, employment_date, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, teacher.ID, teacher.FullName, teacher.Subject,
		teacher.Qualifications, teacher.EmploymentDate, teacher.Active, teacher.CreatedAt, teacher.UpdatedAt); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update persists mutable teacher fields.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	query := `UPDATE teachers SET full_name = $2, subject = $3, qualifications = $4, employment_date = $5, active = $6, updated_at = $7
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, teacher.ID, teacher.FullName, teacher.Subject,
		teacher.Qualifications, teacher.EmploymentDate, teacher.Active, teacher.UpdatedAt); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a teacher.
func (r *TeacherRepository) Deactivate(ctx context.Context, id string) error {
	query := "UPDATE teachers SET active = FALSE, updated_at = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate teacher: %w", err)
	}
	return nil
}
