package service

import (
	"context"
	"database/sql"

	"github.com/noah-isme/school-records-api/internal/models"
)

// Shared fixtures for service tests. Repositories specific to one service
// are mocked in that service's test file.

type stubLinkageAccounts struct {
	children map[string][]string
}

func (s *stubLinkageAccounts) LinkedChildIDs(ctx context.Context, accountID string) ([]string, error) {
	return s.children[accountID], nil
}

type stubLinkageClasses struct {
	byTeacher map[string][]models.Class
}

func (s *stubLinkageClasses) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	return s.byTeacher[teacherID], nil
}

type stubAudit struct {
	logs []models.AuditLog
}

func (s *stubAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, *log)
	return nil
}

type stubLinkageStudents struct {
	students map[string]models.Student
}

func (s *stubLinkageStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if st, ok := s.students[id]; ok {
		return &models.StudentDetail{Student: st}, nil
	}
	return nil, sql.ErrNoRows
}

func newTestGate(children map[string][]string, byTeacher map[string][]models.Class) *Gate {
	return newTestGateWithStudents(children, byTeacher, nil)
}

func newTestGateWithStudents(children map[string][]string, byTeacher map[string][]models.Class, students map[string]models.Student) *Gate {
	return NewGate(
		&stubLinkageAccounts{children: children},
		&stubLinkageClasses{byTeacher: byTeacher},
		&stubLinkageStudents{students: students},
		nil,
	)
}

func adminActor() *models.Account {
	return &models.Account{ID: "acc-admin", Role: models.RoleAdmin, Active: true}
}

func teacherActor(teacherID string) *models.Account {
	return &models.Account{ID: "acc-teacher", Role: models.RoleTeacher, LinkedPersonID: &teacherID, Active: true}
}

func studentActor(studentID string) *models.Account {
	return &models.Account{ID: "acc-student", Role: models.RoleStudent, LinkedPersonID: &studentID, Active: true}
}

func parentActor() *models.Account {
	return &models.Account{ID: "acc-parent", Role: models.RoleParent, Active: true}
}
