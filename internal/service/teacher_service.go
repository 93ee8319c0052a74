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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Deactivate(ctx context.Context, id string) error
}

type teacherClassReader interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

// TeacherRequest describes teacher create/update payload.
type TeacherRequest struct {
	FullName       string    `json:"full_name" validate:"required"`
	Subject        string    `json:"subject" validate:"required"`
	Qualifications string    `json:"qualifications"`
	EmploymentDate time.Time `json:"employment_date" validate:"required"`
}

// TeacherService manages teacher records.
type TeacherService struct {
	repo      teacherRepository
	classes   teacherClassReader
	audit     auditWriter
	gate      *Gate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs TeacherService.
func NewTeacherService(repo teacherRepository, classes teacherClassReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, classes: classes, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns teachers with pagination metadata.
func (s *TeacherService) List(ctx context.Context, actor *models.Account, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindTeacher}); err != nil {
		return nil, nil, err
	}
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single teacher.
func (s *TeacherService) Get(ctx context.Context, actor *models.Account, id string) (*models.Teacher, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindTeacher, ID: id}); err != nil {
		return nil, err
	}
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher.
func (s *TeacherService) Create(ctx context.Context, actor *models.Account, req TeacherRequest) (*models.Teacher, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindTeacher}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher := &models.Teacher{
		FullName:       req.FullName,
		Subject:        req.Subject,
		Qualifications: req.Qualifications,
		EmploymentDate: req.EmploymentDate,
		Active:         true,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.recordAudit(ctx, actor, models.AuditActionCreate, teacher.ID)
	return teacher, nil
}

// Update persists teacher profile changes.
func (s *TeacherService) Update(ctx context.Context, actor *models.Account, id string, req TeacherRequest) (*models.Teacher, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindTeacher, ID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	teacher.FullName = req.FullName
	teacher.Subject = req.Subject
	teacher.Qualifications = req.Qualifications
	teacher.EmploymentDate = req.EmploymentDate
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, id)
	return teacher, nil
}

// Deactivate soft-deletes a teacher. A teacher still responsible for classes
// cannot be removed; the classes must be reassigned first.
func (s *TeacherService) Deactivate(ctx context.Context, actor *models.Account, id string) error {
	if err := s.gate.Require(ctx, actor, authz.ActionDelete, authz.Resource{Kind: authz.KindTeacher, ID: id}); err != nil {
		return err
	}

	classes, err := s.classes.ListByTeacher(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assigned classes")
	}
	if len(classes) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "teacher still assigned to classes")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}

	s.recordAudit(ctx, actor, models.AuditActionDelete, id)
	return nil
}

func (s *TeacherService) recordAudit(ctx context.Context, actor *models.Account, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   "teachers",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
