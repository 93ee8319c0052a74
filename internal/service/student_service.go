package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
	Enroll(ctx context.Context, studentID, classID string) error
	Unenroll(ctx context.Context, studentID, classID string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateStudentRequest describes student creation payload.
type CreateStudentRequest struct {
	FullName      string    `json:"full_name" validate:"required"`
	GuardianName  string    `json:"guardian_name" validate:"required"`
	GuardianPhone string    `json:"guardian_phone"`
	DateOfBirth   time.Time `json:"date_of_birth" validate:"required"`
	ClassID       *string   `json:"class_id,omitempty"`
}

// UpdateStudentRequest describes mutable student fields. Class membership is
// changed only through Enroll and Transfer so the class counter stays in
// step.
type UpdateStudentRequest struct {
	FullName      string    `json:"full_name" validate:"required"`
	GuardianName  string    `json:"guardian_name" validate:"required"`
	GuardianPhone string    `json:"guardian_phone"`
	DateOfBirth   time.Time `json:"date_of_birth" validate:"required"`
}

// EnrollStudentRequest assigns a student to a class.
type EnrollStudentRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// StudentService orchestrates student lifecycle and class membership.
type StudentService struct {
	repo      studentRepository
	classes   classReader
	audit     auditWriter
	gate      *Gate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, classes classReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classes: classes, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns students visible to the acting account.
func (s *StudentService) List(ctx context.Context, actor *models.Account, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindStudent}); err != nil {
		return nil, nil, err
	}

	// Students and parents only ever see their own slice regardless of the
	// requested filter.
	switch actor.Role {
	case models.RoleStudent:
		link, err := s.gate.Linkage(ctx, actor)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account relationships")
		}
		filter.IDs = []string{link.PersonID}
	case models.RoleParent:
		link, err := s.gate.Linkage(ctx, actor)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account relationships")
		}
		if len(link.ChildIDs) == 0 {
			return []models.StudentDetail{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
		}
		filter.IDs = link.ChildIDs
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single student profile.
func (s *StudentService) Get(ctx context.Context, actor *models.Account, id string) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindStudent, ID: id}); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, actor *models.Account, req CreateStudentRequest) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindStudent}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		FullName:      req.FullName,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		DateOfBirth:   req.DateOfBirth,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	// An initial class assignment goes through the same enrolment path as a
	// later one so the capacity check is never skipped.
	if req.ClassID != nil && *req.ClassID != "" {
		if _, err := s.Enroll(ctx, actor, student.ID, EnrollStudentRequest{ClassID: *req.ClassID}); err != nil {
			return nil, err
		}
	}

	s.recordAudit(ctx, actor, models.AuditActionCreate, "students", student.ID)
	return s.repo.FindByID(ctx, student.ID)
}

// Update persists profile changes.
func (s *StudentService) Update(ctx context.Context, actor *models.Account, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindStudent, ID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student := existing.Student
	student.FullName = req.FullName
	student.GuardianName = req.GuardianName
	student.GuardianPhone = req.GuardianPhone
	student.DateOfBirth = req.DateOfBirth
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, "students", id)
	return s.repo.FindByID(ctx, id)
}

// Deactivate soft-deletes a student, releasing any class seat first.
func (s *StudentService) Deactivate(ctx context.Context, actor *models.Account, id string) error {
	if err := s.gate.Require(ctx, actor, authz.ActionDelete, authz.Resource{Kind: authz.KindStudent, ID: id}); err != nil {
		return err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if student.ClassID != nil {
		if err := s.repo.Unenroll(ctx, id, *student.ClassID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release class seat")
		}
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}

	s.recordAudit(ctx, actor, models.AuditActionDelete, "students", id)
	return nil
}

// Enroll assigns a student to a class. Capacity is enforced by a conditional
// update inside the repository transaction, so concurrent enrolments against
// the last seat leave exactly one winner.
func (s *StudentService) Enroll(ctx context.Context, actor *models.Account, studentID string, req EnrollStudentRequest) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindStudent, ID: studentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrolment payload")
	}

	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is inactive")
	}
	if student.ClassID != nil {
		if *student.ClassID == req.ClassID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in class")
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already belongs to another class")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "class does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if err := s.repo.Enroll(ctx, studentID, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "class is at capacity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	s.recordAudit(ctx, actor, models.AuditActionEnroll, "students", studentID)
	return s.repo.FindByID(ctx, studentID)
}

// Unenroll removes a student from their current class.
func (s *StudentService) Unenroll(ctx context.Context, actor *models.Account, studentID string) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindStudent, ID: studentID}); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is not enrolled in any class")
	}

	if err := s.repo.Unenroll(ctx, studentID, *student.ClassID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll student")
	}

	s.recordAudit(ctx, actor, models.AuditActionUnenroll, "students", studentID)
	return s.repo.FindByID(ctx, studentID)
}

// Transfer moves a student to another class. If the target class turns out
// to be full the previous seat is restored, so a failed transfer leaves the
// student where they were.
func (s *StudentService) Transfer(ctx context.Context, actor *models.Account, studentID string, req EnrollStudentRequest) (*models.StudentDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindStudent, ID: studentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID == nil {
		return s.Enroll(ctx, actor, studentID, req)
	}
	if *student.ClassID == req.ClassID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already in target class")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "target class does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	previous := *student.ClassID
	if err := s.repo.Unenroll(ctx, studentID, previous); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release current class seat")
	}
	if err := s.repo.Enroll(ctx, studentID, req.ClassID); err != nil {
		// Put the student back so a full target class does not strand them.
		if restoreErr := s.repo.Enroll(ctx, studentID, previous); restoreErr != nil {
			s.logger.Error("failed to restore previous class after transfer failure",
				zap.String("student_id", studentID), zap.Error(restoreErr))
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "target class is at capacity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer student")
	}

	s.recordAudit(ctx, actor, models.AuditActionEnroll, "students", studentID)
	return s.repo.FindByID(ctx, studentID)
}

func (s *StudentService) recordAudit(ctx context.Context, actor *models.Account, action, resource, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func paginationMeta(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
