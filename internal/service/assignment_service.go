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

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
	CountSubmissions(ctx context.Context, id string) (int, error)
}

// AssignmentRequest describes assignment create/update payload.
type AssignmentRequest struct {
	ClassID     string    `json:"class_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	MaxScore    int       `json:"max_score" validate:"required,min=1"`
}

// AssignmentService manages assignments posted by teachers.
type AssignmentService struct {
	repo      assignmentRepository
	classes   classReader
	audit     auditWriter
	gate      *Gate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, classes classReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, classes: classes, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns assignments with pagination metadata.
func (s *AssignmentService) List(ctx context.Context, actor *models.Account, filter models.AssignmentFilter) ([]models.AssignmentDetail, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAssignment}); err != nil {
		return nil, nil, err
	}
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single assignment.
func (s *AssignmentService) Get(ctx context.Context, actor *models.Account, id string) (*models.Assignment, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAssignment, ID: id}); err != nil {
		return nil, err
	}
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create posts a new assignment for a class. The acting teacher must teach
// the class; the subject is inherited from it.
func (s *AssignmentService) Create(ctx context.Context, actor *models.Account, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindAssignment, ClassID: req.ClassID}); err != nil {
		return nil, err
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "class does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	teacherID := class.TeacherID
	if actor.Role == models.RoleTeacher && actor.LinkedPersonID != nil {
		teacherID = *actor.LinkedPersonID
	}

	assignment := &models.Assignment{
		ClassID:     req.ClassID,
		TeacherID:   teacherID,
		Subject:     class.Subject,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		MaxScore:    req.MaxScore,
		Status:      models.AssignmentStatusOpen,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.recordAudit(ctx, actor, models.AuditActionCreate, assignment.ID)
	return assignment, nil
}

// Update persists assignment changes. Only the owning teacher (or an admin)
// reaches this point; the gate checks ownership against the stored row.
func (s *AssignmentService) Update(ctx context.Context, actor *models.Account, id string, req AssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{
		Kind:      authz.KindAssignment,
		ID:        id,
		TeacherID: assignment.TeacherID,
		ClassID:   assignment.ClassID,
	}); err != nil {
		return nil, err
	}

	if req.ClassID != assignment.ClassID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignments cannot move between classes")
	}

	assignment.Title = req.Title
	assignment.Description = req.Description
	assignment.DueDate = req.DueDate
	assignment.MaxScore = req.MaxScore
	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, id)
	return assignment, nil
}

// Close stops an assignment from accepting further submissions.
func (s *AssignmentService) Close(ctx context.Context, actor *models.Account, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{
		Kind:      authz.KindAssignment,
		ID:        id,
		TeacherID: assignment.TeacherID,
		ClassID:   assignment.ClassID,
	}); err != nil {
		return nil, err
	}

	if assignment.Status == models.AssignmentStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment already closed")
	}

	assignment.Status = models.AssignmentStatusClosed
	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close assignment")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, id)
	return assignment, nil
}

// Delete removes an assignment that has no submissions yet.
func (s *AssignmentService) Delete(ctx context.Context, actor *models.Account, id string) error {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.gate.Require(ctx, actor, authz.ActionDelete, authz.Resource{
		Kind:      authz.KindAssignment,
		ID:        id,
		TeacherID: assignment.TeacherID,
		ClassID:   assignment.ClassID,
	}); err != nil {
		return err
	}

	count, err := s.repo.CountSubmissions(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "assignment already has submissions")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}

	s.recordAudit(ctx, actor, models.AuditActionDelete, id)
	return nil
}

func (s *AssignmentService) recordAudit(ctx context.Context, actor *models.Account, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   "assignments",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
