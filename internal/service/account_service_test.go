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

type mockAccountRepo struct {
	accounts    map[string]models.Account
	emails      map[string]string
	children    map[string][]string
	links       []models.ParentLink
	deactivated []string
	auditLogs   []models.AuditLog
}

func (m *mockAccountRepo) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	if id, ok := m.emails[email]; ok {
		return excludeID == "" || id != excludeID, nil
	}
	return false, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.Account) error {
	if m.accounts == nil {
		m.accounts = make(map[string]models.Account)
	}
	if account.ID == "" {
		account.ID = "generated"
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *mockAccountRepo) Update(ctx context.Context, account *models.Account) error {
	// Role changes never reach the store; mirror the production statement by
	// keeping the stored role whatever the caller passed.
	stored := m.accounts[account.ID]
	updated := *account
	updated.Role = stored.Role
	m.accounts[account.ID] = updated
	return nil
}

func (m *mockAccountRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if a, ok := m.accounts[id]; ok {
		a.Active = false
		m.accounts[id] = a
	}
	return nil
}

func (m *mockAccountRepo) LinkedChildIDs(ctx context.Context, accountID string) ([]string, error) {
	return m.children[accountID], nil
}

func (m *mockAccountRepo) CreateParentLink(ctx context.Context, link *models.ParentLink) error {
	m.links = append(m.links, *link)
	if m.children == nil {
		m.children = make(map[string][]string)
	}
	m.children[link.AccountID] = append(m.children[link.AccountID], link.StudentID)
	return nil
}

func (m *mockAccountRepo) DeleteParentLink(ctx context.Context, accountID, studentID string) error {
	kept := m.children[accountID][:0]
	for _, id := range m.children[accountID] {
		if id != studentID {
			kept = append(kept, id)
		}
	}
	m.children[accountID] = kept
	return nil
}

func (m *mockAccountRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, *log)
	return nil
}

func newAccountService(repo *mockAccountRepo, students *mockStudentRepo) *AccountService {
	return NewAccountService(repo, students, activeTeachers(), newTestGate(nil, nil), nil, nil)
}

func TestAccountServiceCreateAdminAccount(t *testing.T) {
	repo := &mockAccountRepo{}
	svc := newAccountService(repo, &mockStudentRepo{})

	account, err := svc.Create(context.Background(), adminActor(), CreateAccountRequest{
		Email: "new@school.test", Password: "secret1", FullName: "New Admin", Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.True(t, account.Active)
	assert.NotEqual(t, "secret1", account.PasswordHash)
}

func TestAccountServiceCreateStudentAccountRequiresPerson(t *testing.T) {
	svc := newAccountService(&mockAccountRepo{}, &mockStudentRepo{})

	_, err := svc.Create(context.Background(), adminActor(), CreateAccountRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid", Role: models.RoleStudent,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
}

func TestAccountServiceCreateStudentAccountMissingPerson(t *testing.T) {
	ghost := "ghost"
	svc := newAccountService(&mockAccountRepo{}, &mockStudentRepo{})

	_, err := svc.Create(context.Background(), adminActor(), CreateAccountRequest{
		Email: "kid@school.test", Password: "secret1", FullName: "Kid", Role: models.RoleStudent, LinkedPersonID: &ghost,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrMissingReference))
}

func TestAccountServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockAccountRepo{emails: map[string]string{"taken@school.test": "acc-1"}}
	svc := newAccountService(repo, &mockStudentRepo{})

	_, err := svc.Create(context.Background(), adminActor(), CreateAccountRequest{
		Email: "taken@school.test", Password: "secret1", FullName: "Dup", Role: models.RoleAdmin,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestAccountServiceCreateDeniedForTeacher(t *testing.T) {
	svc := newAccountService(&mockAccountRepo{}, &mockStudentRepo{})

	_, err := svc.Create(context.Background(), teacherActor("t-1"), CreateAccountRequest{
		Email: "x@school.test", Password: "secret1", FullName: "X", Role: models.RoleAdmin,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAccountServiceUpdateNeverChangesRole(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Email: "t@school.test", FullName: "Teach", Role: models.RoleTeacher, Active: true},
	}}
	svc := newAccountService(repo, &mockStudentRepo{})

	updated, err := svc.Update(context.Background(), adminActor(), "acc-1", UpdateAccountRequest{
		Email: "t@school.test", FullName: "Renamed", Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FullName)
	assert.Equal(t, models.RoleTeacher, repo.accounts["acc-1"].Role)
}

func TestAccountServiceDeactivateSelfRefused(t *testing.T) {
	actor := adminActor()
	repo := &mockAccountRepo{accounts: map[string]models.Account{actor.ID: *actor}}
	svc := newAccountService(repo, &mockStudentRepo{})

	err := svc.Deactivate(context.Background(), actor, actor.ID)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	assert.Empty(t, repo.deactivated)
}

func TestAccountServiceLinkChild(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-p": {ID: "acc-p", Role: models.RoleParent, Active: true},
	}}
	students := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1"}}}
	svc := newAccountService(repo, students)

	err := svc.LinkChild(context.Background(), adminActor(), "acc-p", LinkChildRequest{StudentID: "st-1"})
	require.NoError(t, err)
	require.Len(t, repo.links, 1)
	assert.Equal(t, "st-1", repo.links[0].StudentID)
}

func TestAccountServiceLinkChildOnlyParents(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-t": {ID: "acc-t", Role: models.RoleTeacher, Active: true},
	}}
	svc := newAccountService(repo, &mockStudentRepo{})

	err := svc.LinkChild(context.Background(), adminActor(), "acc-t", LinkChildRequest{StudentID: "st-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestAccountServiceLinkChildAlreadyLinked(t *testing.T) {
	repo := &mockAccountRepo{
		accounts: map[string]models.Account{"acc-p": {ID: "acc-p", Role: models.RoleParent, Active: true}},
		children: map[string][]string{"acc-p": {"st-1"}},
	}
	students := &mockStudentRepo{students: map[string]models.Student{"st-1": {ID: "st-1"}}}
	svc := newAccountService(repo, students)

	err := svc.LinkChild(context.Background(), adminActor(), "acc-p", LinkChildRequest{StudentID: "st-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
}

func TestAccountServiceUnlinkChild(t *testing.T) {
	repo := &mockAccountRepo{
		accounts: map[string]models.Account{"acc-p": {ID: "acc-p", Role: models.RoleParent, Active: true}},
		children: map[string][]string{"acc-p": {"st-1", "st-2"}},
	}
	svc := newAccountService(repo, &mockStudentRepo{})

	err := svc.UnlinkChild(context.Background(), adminActor(), "acc-p", "st-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"st-2"}, repo.children["acc-p"])
}
