package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/internal/workflow"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type dashboardAccountReader interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error)
}

type dashboardStudentReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type dashboardTeacherReader interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
}

type dashboardClassReader interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

type dashboardAssignmentReader interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
}

type dashboardSubmissionReader interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
}

type dashboardGradeReader interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
}

type dashboardAttendanceReader interface {
	Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

// DashboardService assembles per-role landing page summaries. Results are
// cached briefly; a cold or unreachable cache just recomputes.
type DashboardService struct {
	accounts    dashboardAccountReader
	students    dashboardStudentReader
	teachers    dashboardTeacherReader
	classes     dashboardClassReader
	assignments dashboardAssignmentReader
	submissions dashboardSubmissionReader
	grades      dashboardGradeReader
	attendance  dashboardAttendanceReader
	cache       dashboardCache
	gate        *Gate
	ttl         time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// WithMetrics attaches an optional collector for cache hit/miss counts.
func (s *DashboardService) WithMetrics(m *MetricsService) *DashboardService {
	s.metrics = m
	return s
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(
	accounts dashboardAccountReader,
	students dashboardStudentReader,
	teachers dashboardTeacherReader,
	classes dashboardClassReader,
	assignments dashboardAssignmentReader,
	submissions dashboardSubmissionReader,
	grades dashboardGradeReader,
	attendance dashboardAttendanceReader,
	cache dashboardCache,
	gate *Gate,
	ttl time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DashboardService{
		accounts:    accounts,
		students:    students,
		teachers:    teachers,
		classes:     classes,
		assignments: assignments,
		submissions: submissions,
		grades:      grades,
		attendance:  attendance,
		cache:       cache,
		gate:        gate,
		ttl:         ttl,
		logger:      logger,
	}
}

// ForAccount returns the dashboard matching the acting account's role.
func (s *DashboardService) ForAccount(ctx context.Context, actor *models.Account) (interface{}, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}

	switch actor.Role {
	case models.RoleAdmin:
		return s.adminDashboard(ctx)
	case models.RoleTeacher:
		return s.teacherDashboard(ctx, actor)
	case models.RoleStudent:
		return s.studentDashboard(ctx, actor)
	case models.RoleParent:
		return s.parentDashboard(ctx, actor)
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
}

func (s *DashboardService) adminDashboard(ctx context.Context) (*models.AdminDashboard, error) {
	const key = "dashboard:admin"
	var cached models.AdminDashboard
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	probe := 1
	_, studentTotal, err := s.students.List(ctx, models.StudentFilter{PageSize: probe})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	_, teacherTotal, err := s.teachers.List(ctx, models.TeacherFilter{PageSize: probe})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	_, classTotal, err := s.classes.List(ctx, models.ClassFilter{PageSize: probe})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
	}
	_, accountTotal, err := s.accounts.List(ctx, models.AccountFilter{PageSize: probe})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count accounts")
	}

	dashboard := &models.AdminDashboard{
		TotalStudents: studentTotal,
		TotalTeachers: teacherTotal,
		TotalClasses:  classTotal,
		TotalAccounts: accountTotal,
		GeneratedAt:   time.Now().UTC(),
	}
	s.store(ctx, key, dashboard)
	return dashboard, nil
}

func (s *DashboardService) teacherDashboard(ctx context.Context, actor *models.Account) (*models.TeacherDashboard, error) {
	if actor.LinkedPersonID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "teacher account has no linked teacher")
	}
	teacherID := *actor.LinkedPersonID

	key := fmt.Sprintf("dashboard:teacher:%s", teacherID)
	var cached models.TeacherDashboard
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	classes, _, err := s.classes.List(ctx, models.ClassFilter{TeacherID: teacherID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	openStatus := models.AssignmentStatusOpen
	_, openTotal, err := s.assignments.List(ctx, models.AssignmentFilter{TeacherID: teacherID, Status: &openStatus, PageSize: 1})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
	}

	submitted := models.SubmissionStatusSubmitted
	ungraded := 0
	for _, class := range classes {
		_, total, err := s.submissions.List(ctx, models.SubmissionFilter{ClassID: class.ID, Status: &submitted, PageSize: 1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}
		ungraded += total
	}

	dashboard := &models.TeacherDashboard{
		Classes:             classes,
		OpenAssignments:     openTotal,
		UngradedSubmissions: ungraded,
		GeneratedAt:         time.Now().UTC(),
	}
	s.store(ctx, key, dashboard)
	return dashboard, nil
}

func (s *DashboardService) studentDashboard(ctx context.Context, actor *models.Account) (*models.StudentDashboard, error) {
	if actor.LinkedPersonID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student account has no linked student")
	}
	return s.buildStudentDashboard(ctx, *actor.LinkedPersonID)
}

func (s *DashboardService) parentDashboard(ctx context.Context, actor *models.Account) (*models.ParentDashboard, error) {
	link, err := s.gate.Linkage(ctx, actor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account relationships")
	}

	dashboard := &models.ParentDashboard{GeneratedAt: time.Now().UTC()}
	for _, childID := range link.ChildIDs {
		child, err := s.buildStudentDashboard(ctx, childID)
		if err != nil {
			return nil, err
		}
		dashboard.Children = append(dashboard.Children, *child)
	}
	return dashboard, nil
}

func (s *DashboardService) buildStudentDashboard(ctx context.Context, studentID string) (*models.StudentDashboard, error) {
	key := fmt.Sprintf("dashboard:student:%s", studentID)
	var cached models.StudentDashboard
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	recent, _, err := s.grades.List(ctx, models.GradeFilter{StudentID: studentID, PageSize: 5, SortBy: "created_at", SortOrder: "desc"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent grades")
	}

	summary, err := s.attendance.Summary(ctx, studentID, nil, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance summary")
	}
	summary.PresentRate = workflow.PresentRate(summary.Present, summary.Total)

	grades := make([]models.Grade, 0, len(recent))
	for _, g := range recent {
		grades = append(grades, g.Grade)
	}

	dashboard := &models.StudentDashboard{
		Student:      *student,
		RecentGrades: grades,
		Attendance:   *summary,
		GeneratedAt:  time.Now().UTC(),
	}
	s.store(ctx, key, dashboard)
	return dashboard, nil
}

func (s *DashboardService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	hit := err == nil
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
	if !hit && !appErrors.HasCode(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
	}
	return hit
}

func (s *DashboardService) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
