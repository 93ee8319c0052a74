package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/workflow"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	ExistsForDate(ctx context.Context, classID string, date time.Time) (bool, error)
	InsertBatch(ctx context.Context, rows []*models.Attendance) error
	Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

type attendanceStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// AttendanceEntry is one student's mark inside a batch.
type AttendanceEntry struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// MarkAttendanceRequest records attendance for a class on a given date. The
// batch is atomic: every entry lands or none does.
type MarkAttendanceRequest struct {
	ClassID string            `json:"class_id" validate:"required"`
	Date    time.Time         `json:"date" validate:"required"`
	Entries []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// AttendanceService orchestrates attendance marking and summaries.
type AttendanceService struct {
	repo      attendanceRepository
	students  attendanceStudentRepository
	classes   classReader
	audit     auditWriter
	gate      *Gate
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// WithMetrics attaches an optional collector for batch-size observations.
func (s *AttendanceService) WithMetrics(m *MetricsService) *AttendanceService {
	s.metrics = m
	return s
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, students attendanceStudentRepository, classes classReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, classes: classes, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns attendance rows visible to the acting account.
func (s *AttendanceService) List(ctx context.Context, actor *models.Account, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAttendance, StudentID: filter.StudentID, ClassID: filter.ClassID}); err != nil {
		return nil, nil, err
	}

	switch actor.Role {
	case models.RoleStudent:
		if actor.LinkedPersonID != nil {
			filter.StudentID = *actor.LinkedPersonID
		}
	case models.RoleParent:
		link, err := s.gate.Linkage(ctx, actor)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account relationships")
		}
		if filter.StudentID == "" {
			if len(link.ChildIDs) == 0 {
				return []models.AttendanceRecord{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
			}
			filter.StudentIDs = link.ChildIDs
		}
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return rows, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// MarkBatch records attendance for several students at once. Every entry is
// checked before the transaction opens: unknown statuses, unknown students
// and students outside the class all reject the whole batch up front, with
// one diagnostic per failing entry so the caller can fix the batch in a
// single pass.
func (s *AttendanceService) MarkBatch(ctx context.Context, actor *models.Account, req MarkAttendanceRequest) ([]models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindAttendance, ClassID: req.ClassID}); err != nil {
		return nil, err
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "class does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	date := req.Date.Truncate(24 * time.Hour)
	taken, err := s.repo.ExistsForDate(ctx, req.ClassID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing attendance")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for class and date")
	}

	seen := make(map[string]bool, len(req.Entries))
	rows := make([]*models.Attendance, 0, len(req.Entries))
	var failures []string
	missingStudent := false
	for i, entry := range req.Entries {
		if !entry.Status.Valid() {
			failures = append(failures, fmt.Sprintf("entry %d: unknown status %q", i, entry.Status))
			continue
		}
		if seen[entry.StudentID] {
			failures = append(failures, fmt.Sprintf("entry %d: duplicate student %s", i, entry.StudentID))
			continue
		}
		seen[entry.StudentID] = true

		student, err := s.students.FindByID(ctx, entry.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				missingStudent = true
				failures = append(failures, fmt.Sprintf("entry %d: student %s does not exist", i, entry.StudentID))
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if student.ClassID == nil || *student.ClassID != req.ClassID {
			failures = append(failures, fmt.Sprintf("entry %d: student %s is not in class %s", i, entry.StudentID, req.ClassID))
			continue
		}

		rows = append(rows, &models.Attendance{
			StudentID:  entry.StudentID,
			ClassID:    req.ClassID,
			Date:       date,
			Status:     entry.Status,
			RecordedBy: actor.ID,
		})
	}
	if len(failures) > 0 {
		code := appErrors.ErrValidation
		if missingStudent {
			code = appErrors.ErrMissingReference
		}
		return nil, appErrors.WithDetails(appErrors.Clone(code, "attendance batch has invalid entries"), failures)
	}

	if err := s.repo.InsertBatch(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance batch")
	}

	if s.metrics != nil {
		s.metrics.ObserveAttendanceBatch(len(rows))
	}
	s.recordAudit(ctx, actor, req.ClassID)

	out := make([]models.Attendance, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

// Summary returns a student's attendance counts with the present rate
// recomputed from the stored rows.
func (s *AttendanceService) Summary(ctx context.Context, actor *models.Account, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAttendance, StudentID: studentID}); err != nil {
		return nil, err
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	summary, err := s.repo.Summary(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute attendance summary")
	}
	summary.PresentRate = workflow.PresentRate(summary.Present, summary.Total)
	return summary, nil
}

func (s *AttendanceService) recordAudit(ctx context.Context, actor *models.Account, classID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     models.AuditActionMarkAttendance,
		Resource:   "attendance",
		ResourceID: &classID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.Error(err))
	}
}
