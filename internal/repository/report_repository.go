package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/pkg/database"
)

// ReportRepository persists report-card export jobs.
type ReportRepository struct {
	db *database.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new job in QUEUED state.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.ReportStatusQueued
	job.CreatedAt = time.Now().UTC()

	query := `INSERT INTO report_jobs (id, student_id, term, format, status, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.StudentID, job.Term, job.Format,
		job.Status, job.CreatedBy, job.CreatedAt); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID fetches a single job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	query := `SELECT id, student_id, term, format, status, locator, result_url, created_by,
        created_at, finished_at, error_message FROM report_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("find report job: %w", err)
	}
	return &job, nil
}

// ListByCreator returns the most recent jobs requested by an account.
func (r *ReportRepository) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []models.ReportJob
	query := `SELECT id, student_id, term, format, status, locator, result_url, created_by,
        created_at, finished_at, error_message FROM report_jobs
        WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &jobs, query, createdBy, limit); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}

// MarkProcessing flips a queued job to PROCESSING.
func (r *ReportRepository) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE report_jobs SET status = $2 WHERE id = $1 AND status = $3`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusProcessing, models.ReportStatusQueued); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}
	return nil
}

// MarkFinished stores the rendered artifact location and signed URL.
func (r *ReportRepository) MarkFinished(ctx context.Context, id, locator, resultURL string) error {
	query := `UPDATE report_jobs SET status = $2, locator = $3, result_url = $4, finished_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFinished, locator, resultURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}
	return nil
}

// MarkFailed records a render failure.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, message string) error {
	query := `UPDATE report_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ReportStatusFailed, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark report job failed: %w", err)
	}
	return nil
}
