package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/workflow"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type submissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Overwrite(ctx context.Context, submission *models.Submission) error
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type submissionBlobStore interface {
	Save(locator string, data []byte) (string, error)
}

// SubmitRequest describes the submission payload. The attachment is
// optional; when present it is written to the blob store and only its
// locator is persisted with the row.
type SubmitRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	Text         string `json:"text" validate:"required"`
	FileName     string `json:"file_name"`
	FileContent  []byte `json:"-"`
}

// SubmissionService orchestrates the submission lifecycle.
type SubmissionService struct {
	repo        submissionRepository
	assignments assignmentReader
	students    studentReader
	blobs       submissionBlobStore
	audit       auditWriter
	gate        *Gate
	policy      workflow.SubmitPolicy
	validator   *validator.Validate
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// WithMetrics attaches an optional collector for submission outcomes.
func (s *SubmissionService) WithMetrics(m *MetricsService) *SubmissionService {
	s.metrics = m
	return s
}

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(repo submissionRepository, assignments assignmentReader, students studentReader, blobs submissionBlobStore, audit auditWriter, gate *Gate, policy workflow.SubmitPolicy, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		students:    students,
		blobs:       blobs,
		audit:       audit,
		gate:        gate,
		policy:      policy,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns submissions visible to the acting account.
func (s *SubmissionService) List(ctx context.Context, actor *models.Account, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindSubmission, StudentID: filter.StudentID, ClassID: filter.ClassID}); err != nil {
		return nil, nil, err
	}

	// Students see only their own rows whatever filter was supplied.
	if actor.Role == models.RoleStudent && actor.LinkedPersonID != nil {
		filter.StudentID = *actor.LinkedPersonID
	}

	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single submission.
func (s *SubmissionService) Get(ctx context.Context, actor *models.Account, id string) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	res := authz.Resource{Kind: authz.KindSubmission, ID: id, StudentID: submission.StudentID}
	if assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID); err == nil {
		res.ClassID = assignment.ClassID
	}
	if err := s.gate.Require(ctx, actor, authz.ActionRead, res); err != nil {
		return nil, err
	}
	return submission, nil
}

// Submit records a student's answer for an assignment. The lifecycle rules
// are enforced before anything is written: a closed assignment or a past
// deadline rejects the call, and a second submission is refused unless the
// resubmission policy allows overwriting.
func (s *SubmissionService) Submit(ctx context.Context, actor *models.Account, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}

	var studentID string
	if actor.Role == models.RoleStudent && actor.LinkedPersonID != nil {
		studentID = *actor.LinkedPersonID
	}
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindSubmission, StudentID: studentID}); err != nil {
		return nil, err
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "assignment does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	existing, err := s.repo.FindByAssignmentAndStudent(ctx, req.AssignmentID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}
	if errors.Is(err, sql.ErrNoRows) {
		existing = nil
	}

	if err := workflow.CheckSubmit(assignment, existing, s.now(), s.policy); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSubmission("rejected")
		}
		return nil, err
	}

	var locator *string
	if len(req.FileContent) > 0 && s.blobs != nil {
		// The filename is client input; it must never contribute path
		// segments to the locator.
		fileName := filepath.Base(req.FileName)
		if fileName == "." || fileName == ".." || strings.ContainsAny(fileName, `/\`) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attachment filename")
		}
		name := fmt.Sprintf("submissions/%s/%s/%s", req.AssignmentID, studentID, fileName)
		stored, err := s.blobs.Save(name, req.FileContent)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
		}
		locator = &stored
	}

	submittedAt := s.now()
	submission := &models.Submission{
		AssignmentID: req.AssignmentID,
		StudentID:    studentID,
		Text:         req.Text,
		FileLocator:  locator,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  &submittedAt,
	}

	outcome := "accepted"
	if existing != nil {
		outcome = "resubmitted"
		submission.ID = existing.ID
		if err := s.repo.Overwrite(ctx, submission); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to overwrite submission")
		}
	} else {
		if err := s.repo.Create(ctx, submission); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
	s.recordAudit(ctx, actor, models.AuditActionSubmit, submission.ID)
	return submission, nil
}

func (s *SubmissionService) recordAudit(ctx context.Context, actor *models.Account, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   "submissions",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
