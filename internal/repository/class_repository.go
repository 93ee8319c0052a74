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

// ClassRepository manages persistence for class records.
type ClassRepository struct {
	db *database.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *database.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching the provided filters.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := "FROM classes cl LEFT JOIN teachers t ON t.id = cl.teacher_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("cl.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("cl.subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(cl.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"name":       "cl.name",
		"level":      "cl.level",
		"created_at": "cl.created_at",
	}, "cl.name")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT cl.id, cl.name, cl.level, cl.subject, cl.teacher_id, cl.capacity, cl.enrolled_count, cl.created_at, cl.updated_at,
        t.full_name AS teacher_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	query := `SELECT id, name, level, subject, teacher_id, capacity, enrolled_count, created_at, updated_at
        FROM classes WHERE id = $1`
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID fetches a class with teacher metadata.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	var detail models.ClassDetail
	query := `SELECT cl.id, cl.name, cl.level, cl.subject, cl.teacher_id, cl.capacity, cl.enrolled_count, cl.created_at, cl.updated_at,
        t.full_name AS teacher_name
        FROM classes cl LEFT JOIN teachers t ON t.id = cl.teacher_id
        WHERE cl.id = $1`
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByTeacher returns the classes a teacher is responsible for, used to
// derive authorization linkage.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	var classes []models.Class
	query := `SELECT id, name, level, subject, teacher_id, capacity, enrolled_count, created_at, updated_at
        FROM classes WHERE teacher_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return classes, nil
}

// Create inserts a new class with a zero enrolled count.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	class.EnrolledCount = 0
	query := `INSERT INTO classes (id, name, level, subject, teacher_id, capacity, enrolled_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Level, class.Subject,
		class.TeacherID, class.Capacity, class.EnrolledCount, class.CreatedAt, class.UpdatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update persists mutable class fields. The enrolled_count column is only
// ever touched by the enrollment transaction.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	query := `UPDATE classes SET name = $2, level = $3, subject = $4, teacher_id = $5, capacity = $6, updated_at = $7
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Level, class.Subject,
		class.TeacherID, class.Capacity, class.UpdatedAt); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class row. Callers must have verified no student still
// references it.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}
