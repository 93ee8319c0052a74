package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
}

type classStudentReader interface {
	CountByClass(ctx context.Context, classID string) (int, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
}

// rosterPageSize bounds the roster embedded in a class detail; capacity
// never gets near this in practice.
const rosterPageSize = 200

// ClassRequest describes class create/update payload.
type ClassRequest struct {
	Name      string `json:"name" validate:"required"`
	Level     string `json:"level" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,min=1"`
}

// ClassService manages classes and their teacher assignment.
type ClassService struct {
	repo      classRepository
	teachers  teacherReader
	students  classStudentReader
	audit     auditWriter
	gate      *Gate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, teachers teacherReader, students classStudentReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, teachers: teachers, students: students, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, actor *models.Account, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindClass}); err != nil {
		return nil, nil, err
	}

	// Teachers only see the classes assigned to them.
	if actor.Role == models.RoleTeacher && actor.LinkedPersonID != nil {
		filter.TeacherID = *actor.LinkedPersonID
	}

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single class with teacher context and the enrolled roster.
func (s *ClassService) Get(ctx context.Context, actor *models.Account, id string) (*models.ClassDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindClass, ID: id}); err != nil {
		return nil, err
	}
	class, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	roster, _, err := s.students.List(ctx, models.StudentFilter{ClassID: id, PageSize: rosterPageSize})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	class.Students = make([]models.Student, 0, len(roster))
	for _, member := range roster {
		class.Students = append(class.Students, member.Student)
	}
	return class, nil
}

// Create registers a new class with an empty roster.
func (s *ClassService) Create(ctx context.Context, actor *models.Account, req ClassRequest) (*models.ClassDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindClass}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "teacher does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher is inactive")
	}

	class := &models.Class{
		Name:      req.Name,
		Level:     req.Level,
		Subject:   req.Subject,
		TeacherID: req.TeacherID,
		Capacity:  req.Capacity,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	s.recordAudit(ctx, actor, models.AuditActionCreate, class.ID)
	return s.repo.FindDetailByID(ctx, class.ID)
}

// Update persists class changes. Capacity may never drop below the current
// roster size.
func (s *ClassService) Update(ctx context.Context, actor *models.Account, id string, req ClassRequest) (*models.ClassDetail, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindClass, ID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if req.Capacity < class.EnrolledCount {
		return nil, appErrors.Clone(appErrors.ErrConflict, "capacity cannot be below enrolled count")
	}

	if req.TeacherID != class.TeacherID {
		teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrMissingReference, "teacher does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
		}
		if !teacher.Active {
			return nil, appErrors.Clone(appErrors.ErrConflict, "teacher is inactive")
		}
	}

	class.Name = req.Name
	class.Level = req.Level
	class.Subject = req.Subject
	class.TeacherID = req.TeacherID
	class.Capacity = req.Capacity
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, id)
	return s.repo.FindDetailByID(ctx, id)
}

// Delete removes a class. Deletion is refused while any student still
// references the class so no dangling membership can appear.
func (s *ClassService) Delete(ctx context.Context, actor *models.Account, id string) error {
	if err := s.gate.Require(ctx, actor, authz.ActionDelete, authz.Resource{Kind: authz.KindClass, ID: id}); err != nil {
		return err
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	count, err := s.students.CountByClass(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class members")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has enrolled students")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}

	s.recordAudit(ctx, actor, models.AuditActionDelete, id)
	return nil
}

func (s *ClassService) recordAudit(ctx context.Context, actor *models.Account, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   "classes",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
