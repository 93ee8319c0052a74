package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	fullClass  map[string]bool
	enrolled   []string
	unenrolled []string
	listTotal  int
	lastFilter models.StudentFilter
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	details := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, m.listTotal, nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		detail := models.StudentDetail{Student: s}
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	if s, ok := m.students[id]; ok {
		s.Active = false
		m.students[id] = s
	}
	return nil
}

func (m *mockStudentRepo) Enroll(ctx context.Context, studentID, classID string) error {
	if m.fullClass[classID] {
		return sql.ErrNoRows
	}
	m.enrolled = append(m.enrolled, studentID+":"+classID)
	s := m.students[studentID]
	s.ClassID = &classID
	m.students[studentID] = s
	return nil
}

func (m *mockStudentRepo) Unenroll(ctx context.Context, studentID, classID string) error {
	m.unenrolled = append(m.unenrolled, studentID+":"+classID)
	s := m.students[studentID]
	s.ClassID = nil
	m.students[studentID] = s
	return nil
}

type mockClassReader struct {
	classes map[string]models.Class
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func newStudentService(repo *mockStudentRepo, classes *mockClassReader) *StudentService {
	return NewStudentService(repo, classes, &stubAudit{}, newTestGate(nil, nil), nil, nil)
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := newStudentService(repo, &mockClassReader{})

	student, err := svc.Create(context.Background(), adminActor(), CreateStudentRequest{
		FullName:     "Jane Doe",
		GuardianName: "John Doe",
		DateOfBirth:  time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.True(t, student.Active)
}

func TestStudentServiceCreateDeniedForStudentRole(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{}, &mockClassReader{})

	_, err := svc.Create(context.Background(), studentActor("st-1"), CreateStudentRequest{
		FullName:     "Jane Doe",
		GuardianName: "John Doe",
		DateOfBirth:  time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestStudentServiceCreateWithClassEnrolls(t *testing.T) {
	classID := "class-1"
	repo := &mockStudentRepo{}
	classes := &mockClassReader{classes: map[string]models.Class{classID: {ID: classID, Capacity: 30}}}
	svc := newStudentService(repo, classes)

	student, err := svc.Create(context.Background(), adminActor(), CreateStudentRequest{
		FullName:     "Jane Doe",
		GuardianName: "John Doe",
		DateOfBirth:  time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC),
		ClassID:      &classID,
	})
	require.NoError(t, err)
	require.NotNil(t, student.ClassID)
	assert.Equal(t, classID, *student.ClassID)
	assert.Len(t, repo.enrolled, 1)
}

func TestStudentServiceEnrollCapacityExceeded(t *testing.T) {
	repo := &mockStudentRepo{
		students:  map[string]models.Student{"st-1": {ID: "st-1", Active: true}},
		fullClass: map[string]bool{"class-1": true},
	}
	classes := &mockClassReader{classes: map[string]models.Class{"class-1": {ID: "class-1", Capacity: 1, EnrolledCount: 1}}}
	svc := newStudentService(repo, classes)

	_, err := svc.Enroll(context.Background(), adminActor(), "st-1", EnrollStudentRequest{ClassID: "class-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCapacityExceeded))
}

func TestStudentServiceEnrollMissingClass(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1", Active: true}}}
	svc := newStudentService(repo, &mockClassReader{})

	_, err := svc.Enroll(context.Background(), adminActor(), "st-1", EnrollStudentRequest{ClassID: "ghost"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMissingReference))
}

func TestStudentServiceEnrollAlreadyEnrolled(t *testing.T) {
	current := "class-1"
	repo := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1", Active: true, ClassID: &current}}}
	classes := &mockClassReader{classes: map[string]models.Class{"class-1": {ID: "class-1"}}}
	svc := newStudentService(repo, classes)

	_, err := svc.Enroll(context.Background(), adminActor(), "st-1", EnrollStudentRequest{ClassID: "class-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestStudentServiceTransferRestoresSeatOnFullTarget(t *testing.T) {
	current := "class-1"
	repo := &mockStudentRepo{
		students:  map[string]models.Student{"st-1": {ID: "st-1", Active: true, ClassID: &current}},
		fullClass: map[string]bool{"class-2": true},
	}
	classes := &mockClassReader{classes: map[string]models.Class{
		"class-1": {ID: "class-1"},
		"class-2": {ID: "class-2"},
	}}
	svc := newStudentService(repo, classes)

	_, err := svc.Transfer(context.Background(), adminActor(), "st-1", EnrollStudentRequest{ClassID: "class-2"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCapacityExceeded))
	// The old seat was released and then reclaimed.
	assert.Contains(t, repo.unenrolled, "st-1:class-1")
	assert.Contains(t, repo.enrolled, "st-1:class-1")
}

func TestStudentServiceDeactivateReleasesSeat(t *testing.T) {
	current := "class-1"
	repo := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1", Active: true, ClassID: &current}}}
	svc := newStudentService(repo, &mockClassReader{})

	err := svc.Deactivate(context.Background(), adminActor(), "st-1")
	require.NoError(t, err)
	assert.Contains(t, repo.unenrolled, "st-1:class-1")
	assert.False(t, repo.students["st-1"].Active)
}

func TestStudentServiceListScopesStudentToSelf(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1", Active: true}}}
	svc := newStudentService(repo, &mockClassReader{})

	_, _, err := svc.List(context.Background(), studentActor("st-1"), models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"st-1"}, repo.lastFilter.IDs)
}

func TestStudentServiceListScopesParentToChildren(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1"}}}
	gate := newTestGate(map[string][]string{"acc-parent": {"st-1", "st-2"}}, nil)
	svc := NewStudentService(repo, &mockClassReader{}, &stubAudit{}, gate, nil, nil)

	_, _, err := svc.List(context.Background(), parentActor(), models.StudentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"st-1", "st-2"}, repo.lastFilter.IDs)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{}, &mockClassReader{})

	_, err := svc.Get(context.Background(), adminActor(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestStudentServiceRequiresAuthentication(t *testing.T) {
	svc := newStudentService(&mockStudentRepo{}, &mockClassReader{})

	_, err := svc.Get(context.Background(), nil, "st-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthenticated))
}
