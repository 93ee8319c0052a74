package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/pkg/database"
)

// AttendanceRepository manages persistence for attendance rows.
type AttendanceRepository struct {
	db *database.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *database.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance rows matching the provided filters.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := "FROM attendance att JOIN students s ON s.id = att.student_id"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("att.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("att.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("att.student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("att.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("att.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("att.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"date":       "att.date",
		"created_at": "att.created_at",
	}, "att.date")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT att.id, att.student_id, att.class_id, att.date, att.status, att.recorded_by, att.created_at,
        s.full_name AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// ExistsForDate reports whether any row already exists for the class/date.
func (r *AttendanceRepository) ExistsForDate(ctx context.Context, classID string, date time.Time) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM attendance WHERE class_id = $1 AND date = $2"
	if err := r.db.GetContext(ctx, &count, query, classID, date); err != nil {
		return false, fmt.Errorf("check attendance date: %w", err)
	}
	return count > 0, nil
}

// InsertBatch writes all rows inside a single transaction. A failure on any
// row aborts the whole batch, so attendance for a class/date is always all
// or nothing.
func (r *AttendanceRepository) InsertBatch(ctx context.Context, rows []*models.Attendance) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `INSERT INTO attendance (id, student_id, class_id, date, status, recorded_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, row.ID, row.StudentID, row.ClassID, row.Date,
			row.Status, row.RecordedBy, row.CreatedAt); err != nil {
			return fmt.Errorf("insert attendance for student %s: %w", row.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance batch: %w", err)
	}
	return nil
}

// Summary counts a student's rows grouped by status. The present rate is
// derived by the workflow layer, never stored.
func (r *AttendanceRepository) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	query := `SELECT
        COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'PRESENT') AS present,
        COUNT(*) FILTER (WHERE status = 'ABSENT') AS absent,
        COUNT(*) FILTER (WHERE status = 'LATE') AS late
        FROM attendance WHERE student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		query += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}

	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	summary.StudentID = studentID
	return &summary, nil
}
