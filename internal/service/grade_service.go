package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/workflow"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	CreateForSubmission(ctx context.Context, grade *models.Grade, submissionID string) error
	CreateBatch(ctx context.Context, grades []*models.Grade) error
}

type gradeSubmissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

// GradeSubmissionRequest scores a submitted piece of work.
type GradeSubmissionRequest struct {
	Score    int    `json:"score" validate:"min=0"`
	Term     string `json:"term" validate:"required"`
	Feedback string `json:"feedback"`
}

// ManualGradeRequest records a grade with no backing submission, such as an
// oral exam mark.
type ManualGradeRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	Subject    string `json:"subject" validate:"required"`
	Assignment string `json:"assignment" validate:"required"`
	Score      int    `json:"score" validate:"min=0"`
	MaxScore   int    `json:"max_score" validate:"required,min=1"`
	Term       string `json:"term" validate:"required"`
	Feedback   string `json:"feedback"`
}

// GradeService manages grading of submissions and manual grade entry.
type GradeService struct {
	repo        gradeRepository
	submissions gradeSubmissionRepository
	assignments assignmentReader
	students    studentReader
	audit       auditWriter
	gate        *Gate
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
}

// WithMetrics attaches an optional collector for recorded-grade counts.
func (s *GradeService) WithMetrics(m *MetricsService) *GradeService {
	s.metrics = m
	return s
}

func (s *GradeService) countGrades(n int) {
	if s.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.metrics.RecordGrade()
	}
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, submissions gradeSubmissionRepository, assignments assignmentReader, students studentReader, audit auditWriter, gate *Gate, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, submissions: submissions, assignments: assignments, students: students, audit: audit, gate: gate, validator: validate, logger: logger}
}

// List returns grades visible to the acting account.
func (s *GradeService) List(ctx context.Context, actor *models.Account, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindGrade, StudentID: filter.StudentID, ClassID: filter.ClassID}); err != nil {
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
				return []models.GradeDetail{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
			}
			filter.StudentIDs = link.ChildIDs
		}
	}

	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// GradeSubmission scores a submitted answer. The grade row and the
// SUBMITTED -> GRADED flip land in one store transaction; a concurrent
// double-grade loses the guarded update and the whole write rolls back.
func (s *GradeService) GradeSubmission(ctx context.Context, actor *models.Account, submissionID string, req GradeSubmissionRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "assignment does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.gate.Require(ctx, actor, authz.ActionGrade, authz.Resource{
		Kind:      authz.KindSubmission,
		ID:        submissionID,
		StudentID: submission.StudentID,
		ClassID:   assignment.ClassID,
	}); err != nil {
		return nil, err
	}

	if err := workflow.CheckGrade(submission); err != nil {
		return nil, err
	}
	if req.Score > assignment.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds assignment maximum")
	}

	grade := &models.Grade{
		ID:           uuid.NewString(),
		StudentID:    submission.StudentID,
		SubmissionID: &submission.ID,
		Subject:      assignment.Subject,
		Assignment:   assignment.Title,
		Score:        req.Score,
		MaxScore:     assignment.MaxScore,
		Letter:       workflow.Letter(req.Score, assignment.MaxScore),
		Term:         req.Term,
		Feedback:     req.Feedback,
		RecordedBy:   actor.ID,
	}

	if err := s.repo.CreateForSubmission(ctx, grade, submissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrIllegalTransition, "submission was graded concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	s.countGrades(1)
	s.recordAudit(ctx, actor, models.AuditActionGrade, grade.ID)
	return grade, nil
}

// Create records a manual grade that is not tied to a submission.
func (s *GradeService) Create(ctx context.Context, actor *models.Account, req ManualGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindGrade, StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	if req.Score > req.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds maximum")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	grade := &models.Grade{
		StudentID:  req.StudentID,
		Subject:    req.Subject,
		Assignment: req.Assignment,
		Score:      req.Score,
		MaxScore:   req.MaxScore,
		Letter:     workflow.Letter(req.Score, req.MaxScore),
		Term:       req.Term,
		Feedback:   req.Feedback,
		RecordedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	s.countGrades(1)
	s.recordAudit(ctx, actor, models.AuditActionGrade, grade.ID)
	return grade, nil
}

// CreateBatch records several manual grades in one transaction. Every entry
// is validated before any row is written; one bad entry rejects the whole
// batch.
func (s *GradeService) CreateBatch(ctx context.Context, actor *models.Account, reqs []ManualGradeRequest) ([]*models.Grade, error) {
	if len(reqs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty grade batch")
	}

	grades := make([]*models.Grade, 0, len(reqs))
	for i, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("invalid grade payload in batch entry %d", i))
		}
		if req.Score > req.MaxScore {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score exceeds maximum in batch entry %d", i))
		}
		if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindGrade, StudentID: req.StudentID}); err != nil {
			return nil, err
		}
		if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrMissingReference, fmt.Sprintf("student does not exist in batch entry %d", i))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		grades = append(grades, &models.Grade{
			StudentID:  req.StudentID,
			Subject:    req.Subject,
			Assignment: req.Assignment,
			Score:      req.Score,
			MaxScore:   req.MaxScore,
			Letter:     workflow.Letter(req.Score, req.MaxScore),
			Term:       req.Term,
			Feedback:   req.Feedback,
			RecordedBy: actor.ID,
		})
	}

	if err := s.repo.CreateBatch(ctx, grades); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade batch")
	}

	s.countGrades(len(grades))
	for _, grade := range grades {
		s.recordAudit(ctx, actor, models.AuditActionGrade, grade.ID)
	}
	return grades, nil
}

func (s *GradeService) recordAudit(ctx context.Context, actor *models.Account, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   "grades",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
