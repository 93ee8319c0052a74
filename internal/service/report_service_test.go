package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/jobs"
)

type mockReportRepo struct {
	jobs       map[string]models.ReportJob
	processing []string
	finished   []string
	failed     map[string]string
}

func (m *mockReportRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]models.ReportJob)
	}
	if job.ID == "" {
		job.ID = "job-1"
	}
	job.Status = models.ReportStatusQueued
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockReportRepo) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := m.jobs[id]; ok {
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportRepo) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, j := range m.jobs {
		if j.CreatedBy == createdBy {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *mockReportRepo) MarkProcessing(ctx context.Context, id string) error {
	m.processing = append(m.processing, id)
	j := m.jobs[id]
	j.Status = models.ReportStatusProcessing
	m.jobs[id] = j
	return nil
}

func (m *mockReportRepo) MarkFinished(ctx context.Context, id, locator, resultURL string) error {
	m.finished = append(m.finished, id)
	j := m.jobs[id]
	j.Status = models.ReportStatusFinished
	j.Locator = &locator
	j.ResultURL = &resultURL
	m.jobs[id] = j
	return nil
}

func (m *mockReportRepo) MarkFailed(ctx context.Context, id, message string) error {
	if m.failed == nil {
		m.failed = make(map[string]string)
	}
	m.failed[id] = message
	j := m.jobs[id]
	j.Status = models.ReportStatusFailed
	m.jobs[id] = j
	return nil
}

type stubSigner struct{}

func (stubSigner) Generate(reportID, locator string) (string, time.Time, error) {
	return "signed:" + reportID, time.Now().Add(time.Hour), nil
}

type stubReportQueue struct {
	enqueued []jobs.Job
	fail     bool
}

func (q *stubReportQueue) Enqueue(job jobs.Job) error {
	if q.fail {
		return assert.AnError
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

type reportFixture struct {
	repo    *mockReportRepo
	blobs   *mockBlobStore
	queue   *stubReportQueue
	grades  *dashGrades
	service *ReportService
}

func newReportFixture() *reportFixture {
	f := &reportFixture{
		repo:  &mockReportRepo{},
		blobs: &mockBlobStore{},
		queue: &stubReportQueue{},
		grades: &dashGrades{grades: []models.GradeDetail{
			{Grade: models.Grade{Subject: "Mathematics", Assignment: "Algebra Quiz", Score: 85, MaxScore: 100, Letter: "A", Term: "2026-1"}},
		}},
	}
	students := &mockStudentRepo{students: map[string]models.Student{
		"st-1": {ID: "st-1", FullName: "Budi"},
	}}
	attendance := &dashAttendance{summary: models.AttendanceSummary{Total: 20, Present: 15}}
	f.service = NewReportService(f.repo, students, f.grades, attendance, f.blobs, stubSigner{}, newTestGate(nil, nil), nil, nil)
	f.service.AttachQueue(f.queue)
	return f
}

func TestReportServiceRequestEnqueues(t *testing.T) {
	f := newReportFixture()

	job, err := f.service.Request(context.Background(), studentActor("st-1"), RequestReportCardRequest{
		StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.Len(t, f.queue.enqueued, 1)
	assert.Equal(t, job.ID, f.queue.enqueued[0].Payload)
}

func TestReportServiceRequestQueueFailureMarksJob(t *testing.T) {
	f := newReportFixture()
	f.queue.fail = true

	_, err := f.service.Request(context.Background(), studentActor("st-1"), RequestReportCardRequest{
		StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatCSV,
	})
	require.Error(t, err)
	assert.Contains(t, f.repo.failed, "job-1")
}

func TestReportServiceRequestUnsupportedFormat(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.Request(context.Background(), studentActor("st-1"), RequestReportCardRequest{
		StudentID: "st-1", Term: "2026-1", Format: "xlsx",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestReportServiceRequestOtherStudentDenied(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.Request(context.Background(), studentActor("st-2"), RequestReportCardRequest{
		StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatCSV,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestReportServiceRequestDeniedForAdmin(t *testing.T) {
	f := newReportFixture()

	_, err := f.service.Request(context.Background(), adminActor(), RequestReportCardRequest{
		StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatCSV,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestReportServiceProcessRendersCSV(t *testing.T) {
	f := newReportFixture()
	f.repo.jobs = map[string]models.ReportJob{
		"job-1": {ID: "job-1", StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatCSV, Status: models.ReportStatusQueued, CreatedBy: "acc-student"},
	}

	err := f.service.Process(context.Background(), jobs.Job{ID: "job-1", Type: "report_card", Payload: "job-1"})
	require.NoError(t, err)

	stored := f.repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.Locator)
	assert.Equal(t, "reports/st-1/job-1.csv", *stored.Locator)
	require.NotNil(t, stored.ResultURL)
	assert.Equal(t, "signed:job-1", *stored.ResultURL)

	payload := string(f.blobs.saved[*stored.Locator])
	assert.Contains(t, payload, "Algebra Quiz")
	assert.Contains(t, payload, "75%")
}

func TestReportServiceProcessRendersPDF(t *testing.T) {
	f := newReportFixture()
	f.repo.jobs = map[string]models.ReportJob{
		"job-1": {ID: "job-1", StudentID: "st-1", Term: "2026-1", Format: models.ReportFormatPDF, Status: models.ReportStatusQueued, CreatedBy: "acc-student"},
	}

	err := f.service.Process(context.Background(), jobs.Job{ID: "job-1", Type: "report_card", Payload: "job-1"})
	require.NoError(t, err)

	stored := f.repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	payload := f.blobs.saved["reports/st-1/job-1.pdf"]
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestReportServiceProcessSkipsNonQueued(t *testing.T) {
	f := newReportFixture()
	f.repo.jobs = map[string]models.ReportJob{
		"job-1": {ID: "job-1", StudentID: "st-1", Format: models.ReportFormatCSV, Status: models.ReportStatusFinished},
	}

	err := f.service.Process(context.Background(), jobs.Job{ID: "job-1", Payload: "job-1"})
	require.NoError(t, err)
	assert.Empty(t, f.repo.processing)
}

func TestReportServiceGetScopesStudent(t *testing.T) {
	f := newReportFixture()
	f.repo.jobs = map[string]models.ReportJob{
		"job-1": {ID: "job-1", StudentID: "st-1", Status: models.ReportStatusQueued, CreatedBy: "acc-student"},
	}

	_, err := f.service.Get(context.Background(), studentActor("st-2"), "job-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))

	job, err := f.service.Get(context.Background(), studentActor("st-1"), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}

func TestReportServiceListMine(t *testing.T) {
	f := newReportFixture()
	f.repo.jobs = map[string]models.ReportJob{
		"job-1": {ID: "job-1", StudentID: "st-1", CreatedBy: "acc-student"},
		"job-2": {ID: "job-2", StudentID: "st-9", CreatedBy: "acc-other"},
	}

	list, err := f.service.ListMine(context.Background(), studentActor("st-1"), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "job-1", list[0].ID)
}
