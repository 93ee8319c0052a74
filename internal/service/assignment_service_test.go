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

type mockAssignmentRepo struct {
	assignments map[string]models.Assignment
	submissions map[string]int
	created     []string
	deleted     []string
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if m.assignments == nil {
		m.assignments = make(map[string]models.Assignment)
	}
	if assignment.ID == "" {
		assignment.ID = "as-new"
	}
	m.assignments[assignment.ID] = *assignment
	m.created = append(m.created, assignment.ID)
	return nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.assignments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockAssignmentRepo) CountSubmissions(ctx context.Context, id string) (int, error) {
	return m.submissions[id], nil
}

func mathClass() *mockClassReader {
	return &mockClassReader{classes: map[string]models.Class{
		"class-1": {ID: "class-1", Name: "X IPA 1", Subject: "Mathematics", TeacherID: "t-1", Capacity: 30},
	}}
}

func newAssignmentService(repo *mockAssignmentRepo, classes *mockClassReader) *AssignmentService {
	return NewAssignmentService(repo, classes, &stubAudit{}, teacherGate(), nil, nil)
}

func assignmentRequest() AssignmentRequest {
	return AssignmentRequest{
		ClassID:  "class-1",
		Title:    "Algebra Quiz",
		DueDate:  time.Date(2026, 4, 1, 23, 59, 0, 0, time.UTC),
		MaxScore: 100,
	}
}

func TestAssignmentServiceCreateInheritsSubject(t *testing.T) {
	repo := &mockAssignmentRepo{}
	svc := newAssignmentService(repo, mathClass())

	assignment, err := svc.Create(context.Background(), teacherActor("t-1"), assignmentRequest())
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", assignment.Subject)
	assert.Equal(t, "t-1", assignment.TeacherID)
	assert.Equal(t, models.AssignmentStatusOpen, assignment.Status)
}

func TestAssignmentServiceCreateMissingClass(t *testing.T) {
	gate := newTestGate(nil, map[string][]models.Class{"t-1": {{ID: "class-1"}, {ID: "class-9"}}})
	svc := NewAssignmentService(&mockAssignmentRepo{}, &mockClassReader{}, &stubAudit{}, gate, nil, nil)

	req := assignmentRequest()
	req.ClassID = "class-9"
	_, err := svc.Create(context.Background(), teacherActor("t-1"), req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMissingReference))
}

func TestAssignmentServiceCreateForeignClassDenied(t *testing.T) {
	gate := newTestGate(nil, map[string][]models.Class{"t-2": {{ID: "class-2"}}})
	svc := NewAssignmentService(&mockAssignmentRepo{}, mathClass(), &stubAudit{}, gate, nil, nil)

	_, err := svc.Create(context.Background(), teacherActor("t-2"), assignmentRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceCreateDeniedForAdmin(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentRepo{}, mathClass())

	_, err := svc.Create(context.Background(), adminActor(), assignmentRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceUpdateOwnAssignment(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Subject: "Mathematics", Title: "Old", MaxScore: 50, Status: models.AssignmentStatusOpen},
	}}
	svc := newAssignmentService(repo, mathClass())

	updated, err := svc.Update(context.Background(), teacherActor("t-1"), "as-1", assignmentRequest())
	require.NoError(t, err)
	assert.Equal(t, "Algebra Quiz", updated.Title)
	assert.Equal(t, 100, updated.MaxScore)
}

func TestAssignmentServiceUpdateForeignAssignmentDenied(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Status: models.AssignmentStatusOpen},
	}}
	gate := newTestGate(nil, map[string][]models.Class{"t-2": {{ID: "class-2"}}})
	svc := NewAssignmentService(repo, mathClass(), &stubAudit{}, gate, nil, nil)

	_, err := svc.Update(context.Background(), teacherActor("t-2"), "as-1", assignmentRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAssignmentServiceUpdateCannotMoveClasses(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-2", TeacherID: "t-1", Status: models.AssignmentStatusOpen},
	}}
	gate := newTestGate(nil, map[string][]models.Class{"t-1": {{ID: "class-1"}, {ID: "class-2"}}})
	svc := NewAssignmentService(repo, mathClass(), &stubAudit{}, gate, nil, nil)

	_, err := svc.Update(context.Background(), teacherActor("t-1"), "as-1", assignmentRequest())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestAssignmentServiceClose(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Status: models.AssignmentStatusOpen},
	}}
	svc := newAssignmentService(repo, mathClass())

	closed, err := svc.Close(context.Background(), teacherActor("t-1"), "as-1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusClosed, closed.Status)
}

func TestAssignmentServiceCloseAlreadyClosed(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Status: models.AssignmentStatusClosed},
	}}
	svc := newAssignmentService(repo, mathClass())

	_, err := svc.Close(context.Background(), teacherActor("t-1"), "as-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestAssignmentServiceDeleteWithSubmissionsRefused(t *testing.T) {
	repo := &mockAssignmentRepo{
		assignments: map[string]models.Assignment{
			"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Status: models.AssignmentStatusOpen},
		},
		submissions: map[string]int{"as-1": 3},
	}
	svc := newAssignmentService(repo, mathClass())

	err := svc.Delete(context.Background(), teacherActor("t-1"), "as-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Empty(t, repo.deleted)
}

func TestAssignmentServiceDeleteWithoutSubmissions(t *testing.T) {
	repo := &mockAssignmentRepo{assignments: map[string]models.Assignment{
		"as-1": {ID: "as-1", ClassID: "class-1", TeacherID: "t-1", Status: models.AssignmentStatusOpen},
	}}
	svc := newAssignmentService(repo, mathClass())

	require.NoError(t, svc.Delete(context.Background(), teacherActor("t-1"), "as-1"))
	assert.Equal(t, []string{"as-1"}, repo.deleted)
}
