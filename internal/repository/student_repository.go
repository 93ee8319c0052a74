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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *database.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *database.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s LEFT JOIN classes c ON c.id = s.class_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if len(filter.IDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("s.id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.IDs))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"full_name":  "s.full_name",
		"created_at": "s.created_at",
	}, "s.created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT s.id, s.full_name, s.class_id, s.guardian_name, s.guardian_phone, s.date_of_birth, s.active, s.created_at, s.updated_at,
        c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := `SELECT s.id, s.full_name, s.class_id, s.guardian_name, s.guardian_phone, s.date_of_birth, s.active, s.created_at, s.updated_at,
        c.name AS class_name
        FROM students s
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	query := `INSERT INTO students (id, full_name, class_id, guardian_name, guardian_phone, date_of_birth, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.FullName, student.ClassID, student.GuardianName,
		student.GuardianPhone, student.DateOfBirth, student.Active, student.CreatedAt, student.UpdatedAt); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists mutable student fields, excluding class membership which
// changes only through the enrollment path.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	query := `UPDATE students SET full_name = $2, guardian_name = $3, guardian_phone = $4, date_of_birth = $5, active = $6, updated_at = $7
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.FullName, student.GuardianName,
		student.GuardianPhone, student.DateOfBirth, student.Active, student.UpdatedAt); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a student.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	query := "UPDATE students SET active = FALSE, updated_at = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

// Enroll atomically assigns a student to a class while incrementing the
// class counter. The conditional UPDATE is the store's compare-and-swap:
// zero affected rows means the class is missing or full, and the enclosing
// transaction rolls the membership change back.
func (r *StudentRepository) Enroll(ctx context.Context, studentID, classID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE classes SET enrolled_count = enrolled_count + 1, updated_at = $2
         WHERE id = $1 AND enrolled_count < capacity`, classID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment enrolled count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment enrolled count: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE students SET class_id = $2, updated_at = $3 WHERE id = $1",
		studentID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign student class: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

// Unenroll clears a student's class and decrements the prior class counter
// in the same transaction.
func (r *StudentRepository) Unenroll(ctx context.Context, studentID, classID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unenroll: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE classes SET enrolled_count = GREATEST(enrolled_count - 1, 0), updated_at = $2
         WHERE id = $1`, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement enrolled count: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE students SET class_id = NULL, updated_at = $2 WHERE id = $1",
		studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear student class: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unenroll: %w", err)
	}
	return nil
}

// CountByClass returns how many students reference the class.
func (r *StudentRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM students WHERE class_id = $1", classID); err != nil {
		return 0, fmt.Errorf("count students by class: %w", err)
	}
	return count, nil
}
