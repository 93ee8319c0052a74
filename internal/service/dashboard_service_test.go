package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type dashCache struct {
	data map[string][]byte
	sets []string
}

func (c *dashCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.Clone(appErrors.ErrCacheMiss, "cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (c *dashCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = raw
	c.sets = append(c.sets, key)
	return nil
}

type dashAccounts struct{ total int }

func (d *dashAccounts) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	return nil, d.total, nil
}

type dashTeachers struct{ total int }

func (d *dashTeachers) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	return nil, d.total, nil
}

type dashClasses struct {
	classes []models.ClassDetail
	total   int
}

func (d *dashClasses) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	return d.classes, d.total, nil
}

func (d *dashClasses) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	return nil, nil
}

type dashAssignments struct{ openTotal int }

func (d *dashAssignments) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	return nil, d.openTotal, nil
}

type dashSubmissions struct{ pending map[string]int }

func (d *dashSubmissions) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	return nil, d.pending[filter.ClassID], nil
}

type dashGrades struct{ grades []models.GradeDetail }

func (d *dashGrades) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	return d.grades, len(d.grades), nil
}

type dashAttendance struct{ summary models.AttendanceSummary }

func (d *dashAttendance) Summary(ctx context.Context, studentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	summary := d.summary
	summary.StudentID = studentID
	return &summary, nil
}

type dashboardFixture struct {
	accounts    *dashAccounts
	students    *mockStudentRepo
	teachers    *dashTeachers
	classes     *dashClasses
	assignments *dashAssignments
	submissions *dashSubmissions
	grades      *dashGrades
	attendance  *dashAttendance
	cache       *dashCache
}

func newDashboardFixture() *dashboardFixture {
	return &dashboardFixture{
		accounts: &dashAccounts{total: 40},
		students: &mockStudentRepo{
			students:  map[string]models.Student{"st-1": {ID: "st-1", FullName: "Budi"}},
			listTotal: 30,
		},
		teachers:    &dashTeachers{total: 5},
		classes:     &dashClasses{total: 3},
		assignments: &dashAssignments{openTotal: 4},
		submissions: &dashSubmissions{},
		grades:      &dashGrades{},
		attendance:  &dashAttendance{summary: models.AttendanceSummary{Total: 20, Present: 15, Absent: 3, Late: 2}},
		cache:       &dashCache{},
	}
}

func (f *dashboardFixture) service(children map[string][]string) *DashboardService {
	return NewDashboardService(
		f.accounts, f.students, f.teachers, f.classes,
		f.assignments, f.submissions, f.grades, f.attendance,
		f.cache, newTestGate(children, nil), time.Minute, nil,
	)
}

func TestDashboardServiceAdminCounts(t *testing.T) {
	f := newDashboardFixture()
	svc := f.service(nil)

	out, err := svc.ForAccount(context.Background(), adminActor())
	require.NoError(t, err)
	dashboard, ok := out.(*models.AdminDashboard)
	require.True(t, ok)
	assert.Equal(t, 30, dashboard.TotalStudents)
	assert.Equal(t, 5, dashboard.TotalTeachers)
	assert.Equal(t, 3, dashboard.TotalClasses)
	assert.Equal(t, 40, dashboard.TotalAccounts)
	assert.Contains(t, f.cache.sets, "dashboard:admin")
}

func TestDashboardServiceAdminServedFromCache(t *testing.T) {
	f := newDashboardFixture()
	svc := f.service(nil)

	_, err := svc.ForAccount(context.Background(), adminActor())
	require.NoError(t, err)

	// Underlying counts change but the cached snapshot wins until it expires.
	f.students.listTotal = 99
	out, err := svc.ForAccount(context.Background(), adminActor())
	require.NoError(t, err)
	dashboard := out.(*models.AdminDashboard)
	assert.Equal(t, 30, dashboard.TotalStudents)
	assert.Len(t, f.cache.sets, 1)
}

func TestDashboardServiceTeacherAggregatesUngraded(t *testing.T) {
	f := newDashboardFixture()
	f.classes.classes = []models.ClassDetail{
		{Class: models.Class{ID: "class-1"}},
		{Class: models.Class{ID: "class-2"}},
	}
	f.submissions.pending = map[string]int{"class-1": 3, "class-2": 2}
	svc := f.service(nil)

	out, err := svc.ForAccount(context.Background(), teacherActor("t-1"))
	require.NoError(t, err)
	dashboard, ok := out.(*models.TeacherDashboard)
	require.True(t, ok)
	assert.Equal(t, 4, dashboard.OpenAssignments)
	assert.Equal(t, 5, dashboard.UngradedSubmissions)
	assert.Len(t, dashboard.Classes, 2)
}

func TestDashboardServiceStudentRecomputesAttendanceRate(t *testing.T) {
	f := newDashboardFixture()
	f.grades.grades = []models.GradeDetail{
		{Grade: models.Grade{ID: "g-1", StudentID: "st-1", Score: 85, Letter: "A"}},
	}
	svc := f.service(nil)

	out, err := svc.ForAccount(context.Background(), studentActor("st-1"))
	require.NoError(t, err)
	dashboard, ok := out.(*models.StudentDashboard)
	require.True(t, ok)
	assert.Equal(t, "st-1", dashboard.Student.ID)
	assert.InDelta(t, 0.75, dashboard.Attendance.PresentRate, 0.0001)
	require.Len(t, dashboard.RecentGrades, 1)
	assert.Equal(t, "A", dashboard.RecentGrades[0].Letter)
}

func TestDashboardServiceParentBundlesChildren(t *testing.T) {
	f := newDashboardFixture()
	f.students.students["st-2"] = models.Student{ID: "st-2", FullName: "Siti"}
	svc := f.service(map[string][]string{"acc-parent": {"st-1", "st-2"}})

	out, err := svc.ForAccount(context.Background(), parentActor())
	require.NoError(t, err)
	dashboard, ok := out.(*models.ParentDashboard)
	require.True(t, ok)
	require.Len(t, dashboard.Children, 2)
	assert.Equal(t, "st-1", dashboard.Children[0].Student.ID)
	assert.Equal(t, "st-2", dashboard.Children[1].Student.ID)
}

func TestDashboardServiceRequiresAuthentication(t *testing.T) {
	f := newDashboardFixture()
	svc := f.service(nil)

	_, err := svc.ForAccount(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthenticated))
}

func TestDashboardServiceTeacherWithoutLink(t *testing.T) {
	f := newDashboardFixture()
	svc := f.service(nil)

	actor := &models.Account{ID: "acc-x", Role: models.RoleTeacher, Active: true}
	_, err := svc.ForAccount(context.Background(), actor)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}
