package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type mockClassRepo struct {
	classes    map[string]models.Class
	deleted    []string
	lastFilter models.ClassFilter
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	m.lastFilter = filter
	return nil, 0, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := m.classes[id]; ok {
		return &models.ClassDetail{Class: c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.classes == nil {
		m.classes = make(map[string]models.Class)
	}
	if class.ID == "" {
		class.ID = "generated"
	}
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.classes, id)
	return nil
}

type mockTeacherReader struct {
	teachers map[string]models.Teacher
}

func (m *mockTeacherReader) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudentCounter struct {
	counts     map[string]int
	roster     map[string][]models.Student
	lastFilter models.StudentFilter
}

func (m *mockStudentCounter) CountByClass(ctx context.Context, classID string) (int, error) {
	return m.counts[classID], nil
}

func (m *mockStudentCounter) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	members := m.roster[filter.ClassID]
	details := make([]models.StudentDetail, 0, len(members))
	for _, st := range members {
		details = append(details, models.StudentDetail{Student: st})
	}
	return details, len(details), nil
}

func activeTeachers() *mockTeacherReader {
	return &mockTeacherReader{teachers: map[string]models.Teacher{
		"t-1": {ID: "t-1", FullName: "Ms. Smith", Active: true},
		"t-9": {ID: "t-9", FullName: "Mr. Gone", Active: false},
	}}
}

func newClassService(repo *mockClassRepo, counter *mockStudentCounter) *ClassService {
	return NewClassService(repo, activeTeachers(), counter, &stubAudit{}, newTestGate(nil, nil), nil, nil)
}

func TestClassServiceCreate(t *testing.T) {
	repo := &mockClassRepo{}
	svc := newClassService(repo, &mockStudentCounter{})

	class, err := svc.Create(context.Background(), adminActor(), ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 30,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
	assert.Zero(t, class.EnrolledCount)
}

func TestClassServiceCreateMissingTeacher(t *testing.T) {
	svc := newClassService(&mockClassRepo{}, &mockStudentCounter{})

	_, err := svc.Create(context.Background(), adminActor(), ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "ghost", Capacity: 30,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMissingReference))
}

func TestClassServiceCreateInactiveTeacher(t *testing.T) {
	svc := newClassService(&mockClassRepo{}, &mockStudentCounter{})

	_, err := svc.Create(context.Background(), adminActor(), ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-9", Capacity: 30,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestClassServiceCreateDeniedForTeacher(t *testing.T) {
	svc := newClassService(&mockClassRepo{}, &mockStudentCounter{})

	_, err := svc.Create(context.Background(), teacherActor("t-1"), ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 30,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestClassServiceUpdateCapacityBelowRoster(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 30, EnrolledCount: 25},
	}}
	svc := newClassService(repo, &mockStudentCounter{})

	_, err := svc.Update(context.Background(), adminActor(), "class-1", ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 20,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestClassServiceUpdateReassignTeacher(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-2", Capacity: 30},
	}}
	svc := newClassService(repo, &mockStudentCounter{})

	class, err := svc.Update(context.Background(), adminActor(), "class-1", ClassRequest{
		Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", class.TeacherID)
}

func TestClassServiceDeleteRefusedWhileEnrolled(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{"class-1": {ID: "class-1"}}}
	counter := &mockStudentCounter{counts: map[string]int{"class-1": 3}}
	svc := newClassService(repo, counter)

	err := svc.Delete(context.Background(), adminActor(), "class-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Empty(t, repo.deleted)
}

func TestClassServiceDeleteEmptyClass(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{"class-1": {ID: "class-1"}}}
	svc := newClassService(repo, &mockStudentCounter{})

	err := svc.Delete(context.Background(), adminActor(), "class-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "class-1")
}

func TestClassServiceGetIncludesRoster(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Name: "10-A", Level: "10", Subject: "Math", TeacherID: "t-1", Capacity: 30},
	}}
	counter := &mockStudentCounter{roster: map[string][]models.Student{
		"class-1": {
			{ID: "st-1", FullName: "Alice Tan"},
			{ID: "st-2", FullName: "Budi Santoso"},
		},
	}}
	svc := newClassService(repo, counter)

	class, err := svc.Get(context.Background(), adminActor(), "class-1")
	require.NoError(t, err)
	require.Len(t, class.Students, 2)
	assert.Equal(t, "st-1", class.Students[0].ID)
	assert.Equal(t, "st-2", class.Students[1].ID)
	assert.Equal(t, "class-1", counter.lastFilter.ClassID)
}

func TestClassServiceListScopesTeacherToOwnClasses(t *testing.T) {
	repo := &mockClassRepo{}
	svc := NewClassService(repo, activeTeachers(), &mockStudentCounter{}, &stubAudit{}, teacherGate(), nil, nil)

	_, _, err := svc.List(context.Background(), teacherActor("t-1"), models.ClassFilter{})
	require.NoError(t, err)
	assert.Equal(t, "t-1", repo.lastFilter.TeacherID)
}
