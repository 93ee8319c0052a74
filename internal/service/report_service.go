package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/workflow"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/export"
	"github.com/noah-isme/school-records-api/pkg/jobs"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, locator, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type reportGradeReader interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
}

type reportAttendanceReader interface {
	Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

type reportBlobStore interface {
	Save(locator string, data []byte) (string, error)
}

type urlSigner interface {
	Generate(reportID, locator string) (string, time.Time, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// RequestReportCardRequest queues an asynchronous report-card render.
type RequestReportCardRequest struct {
	StudentID string              `json:"student_id" validate:"required"`
	Term      string              `json:"term" validate:"required"`
	Format    models.ReportFormat `json:"format" validate:"required"`
}

// ReportService renders student report cards in the background. The
// request call only persists a QUEUED job and hands it to the worker pool;
// the caller polls Get until the signed download URL appears.
type ReportService struct {
	repo       reportRepository
	students   studentReader
	grades     reportGradeReader
	attendance reportAttendanceReader
	blobs      reportBlobStore
	signer     urlSigner
	queue      reportQueue
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	gate       *Gate
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(repo reportRepository, students studentReader, grades reportGradeReader, attendance reportAttendanceReader, blobs reportBlobStore, signer urlSigner, gate *Gate, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:       repo,
		students:   students,
		grades:     grades,
		attendance: attendance,
		blobs:      blobs,
		signer:     signer,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		gate:       gate,
		validator:  validate,
		logger:     logger,
	}
}

// AttachQueue wires the background queue after construction. The queue's
// handler is this service's Process method, so both sides need the other.
func (s *ReportService) AttachQueue(queue reportQueue) {
	s.queue = queue
}

// WithMetrics attaches an optional collector for render timings.
func (s *ReportService) WithMetrics(m *MetricsService) *ReportService {
	s.metrics = m
	return s
}

// Request persists a report job and enqueues the render.
func (s *ReportService) Request(ctx context.Context, actor *models.Account, req RequestReportCardRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindReport, StudentID: req.StudentID}); err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrMissingReference, "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	job := &models.ReportJob{
		StudentID: student.ID,
		Term:      req.Term,
		Format:    req.Format,
		CreatedBy: actor.ID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist report job")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report_card", Payload: job.ID}); err != nil {
			s.logger.Error("failed to enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
			if markErr := s.repo.MarkFailed(ctx, job.ID, "queue unavailable"); markErr != nil {
				s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
		}
	}
	return job, nil
}

// Get returns the job's current state, including the download URL once the
// render finished.
func (s *ReportService) Get(ctx context.Context, actor *models.Account, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}

	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindReport, ID: id, StudentID: job.StudentID}); err != nil {
		return nil, err
	}
	return job, nil
}

// ListMine returns the acting account's recent report jobs.
func (s *ReportService) ListMine(ctx context.Context, actor *models.Account, limit int) ([]models.ReportJob, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}
	jobs, err := s.repo.ListByCreator(ctx, actor.ID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	return jobs, nil
}

// Process renders a queued report. It runs on the worker pool, never on a
// request goroutine.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected report payload type %T", job.Payload)
	}

	record, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}
	if record.Status != models.ReportStatusQueued {
		return nil
	}
	if err := s.repo.MarkProcessing(ctx, jobID); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	renderStart := time.Now()
	payload, contentType, err := s.render(ctx, record)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
		}
		return fmt.Errorf("render report %s: %w", jobID, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveReportRender(string(record.Format), time.Since(renderStart))
	}

	locator := fmt.Sprintf("reports/%s/%s.%s", record.StudentID, record.ID, record.Format)
	stored, err := s.blobs.Save(locator, payload)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, jobID, "storage failure"); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
		}
		return fmt.Errorf("store report %s: %w", jobID, err)
	}

	url, _, err := s.signer.Generate(record.ID, stored)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, jobID, "signing failure"); markErr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
		}
		return fmt.Errorf("sign report url %s: %w", jobID, err)
	}

	if err := s.repo.MarkFinished(ctx, jobID, stored, url); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}

	s.logger.Info("report card rendered",
		zap.String("job_id", jobID),
		zap.String("student_id", record.StudentID),
		zap.String("content_type", contentType),
	)
	return nil
}

func (s *ReportService) render(ctx context.Context, record *models.ReportJob) ([]byte, string, error) {
	student, err := s.students.FindByID(ctx, record.StudentID)
	if err != nil {
		return nil, "", fmt.Errorf("load student: %w", err)
	}

	grades, _, err := s.grades.List(ctx, models.GradeFilter{StudentID: record.StudentID, Term: record.Term, PageSize: 200})
	if err != nil {
		return nil, "", fmt.Errorf("load grades: %w", err)
	}

	summary, err := s.attendance.Summary(ctx, record.StudentID, nil, nil)
	if err != nil {
		return nil, "", fmt.Errorf("load attendance: %w", err)
	}
	summary.PresentRate = workflow.PresentRate(summary.Present, summary.Total)

	dataset := export.Dataset{
		Headers: []string{"Subject", "Assignment", "Score", "Max Score", "Letter", "Feedback"},
	}
	for _, grade := range grades {
		dataset.Rows = append(dataset.Rows, []string{
			grade.Subject,
			grade.Assignment,
			strconv.Itoa(grade.Score),
			strconv.Itoa(grade.MaxScore),
			grade.Letter,
			grade.Feedback,
		})
	}
	dataset.Rows = append(dataset.Rows, []string{
		"Attendance", "Present rate",
		strconv.Itoa(summary.Present), strconv.Itoa(summary.Total),
		fmt.Sprintf("%.0f%%", summary.PresentRate*100), "",
	})

	switch record.Format {
	case models.ReportFormatCSV:
		payload, err := s.csv.Render(dataset)
		return payload, "text/csv", err
	case models.ReportFormatPDF:
		title := fmt.Sprintf("Report Card - %s - %s", student.FullName, record.Term)
		payload, err := s.pdf.Render(dataset, title)
		return payload, "application/pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported format %s", record.Format)
	}
}
