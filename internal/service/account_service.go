package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type accountRepository interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Deactivate(ctx context.Context, id string) error
	LinkedChildIDs(ctx context.Context, accountID string) ([]string, error)
	CreateParentLink(ctx context.Context, link *models.ParentLink) error
	DeleteParentLink(ctx context.Context, accountID, studentID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateAccountRequest describes account creation payload. The role is set
// once here and can never be changed afterwards.
type CreateAccountRequest struct {
	Email          string      `json:"email" validate:"required,email"`
	Password       string      `json:"password" validate:"required,min=6"`
	FullName       string      `json:"full_name" validate:"required"`
	Role           models.Role `json:"role" validate:"required"`
	LinkedPersonID *string     `json:"linked_person_id,omitempty"`
}

// UpdateAccountRequest describes mutable account fields.
type UpdateAccountRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Active   bool   `json:"active"`
}

// LinkChildRequest associates a parent account with a student.
type LinkChildRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// AccountService manages account administration and parent links.
type AccountService struct {
	repo      accountRepository
	students  studentReader
	teachers  teacherReader
	gate      *Gate
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccountService constructs AccountService.
func NewAccountService(repo accountRepository, students studentReader, teachers teacherReader, gate *Gate, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repo: repo, students: students, teachers: teachers, gate: gate, validator: validate, logger: logger}
}

// List returns accounts with pagination metadata.
func (s *AccountService) List(ctx context.Context, actor *models.Account, filter models.AccountFilter) ([]models.Account, *models.Pagination, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAccount}); err != nil {
		return nil, nil, err
	}
	accounts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
	}
	return accounts, paginationMeta(filter.Page, filter.PageSize, total), nil
}

// Get returns a single account.
func (s *AccountService) Get(ctx context.Context, actor *models.Account, id string) (*models.Account, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionRead, authz.Resource{Kind: authz.KindAccount, ID: id}); err != nil {
		return nil, err
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return account, nil
}

// Create provisions an account. Accounts for students and teachers must
// point at an existing person row; the reference is checked before writing.
func (s *AccountService) Create(ctx context.Context, actor *models.Account, req CreateAccountRequest) (*models.Account, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionCreate, authz.Resource{Kind: authz.KindAccount}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}

	if err := s.checkLinkedPerson(ctx, req.Role, req.LinkedPersonID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	account := &models.Account{
		Email:          req.Email,
		PasswordHash:   string(hash),
		FullName:       req.FullName,
		Role:           req.Role,
		LinkedPersonID: req.LinkedPersonID,
		Active:         true,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.recordAudit(ctx, actor, models.AuditActionCreate, "accounts", account.ID)
	return account, nil
}

// Update changes mutable account fields. Role changes are rejected by
// construction: the update statement never touches the role column.
func (s *AccountService) Update(ctx context.Context, actor *models.Account, id string, req UpdateAccountRequest) (*models.Account, error) {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindAccount, ID: id}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}

	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	if account.Email != req.Email {
		exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
	}

	account.Email = req.Email
	account.FullName = req.FullName
	account.Active = req.Active
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, "accounts", id)
	return account, nil
}

// Deactivate soft-deletes an account.
func (s *AccountService) Deactivate(ctx context.Context, actor *models.Account, id string) error {
	if err := s.gate.Require(ctx, actor, authz.ActionDelete, authz.Resource{Kind: authz.KindAccount, ID: id}); err != nil {
		return err
	}
	if actor != nil && actor.ID == id {
		return appErrors.Clone(appErrors.ErrConflict, "accounts cannot deactivate themselves")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate account")
	}
	s.recordAudit(ctx, actor, models.AuditActionDelete, "accounts", id)
	return nil
}

// LinkChild attaches a student to a parent account.
func (s *AccountService) LinkChild(ctx context.Context, actor *models.Account, accountID string, req LinkChildRequest) error {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindAccount, ID: accountID}); err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Role != models.RoleParent {
		return appErrors.Clone(appErrors.ErrConflict, "only parent accounts can link children")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrMissingReference, "student does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	children, err := s.repo.LinkedChildIDs(ctx, accountID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing links")
	}
	for _, id := range children {
		if id == req.StudentID {
			return appErrors.Clone(appErrors.ErrConflict, "student already linked")
		}
	}

	if err := s.repo.CreateParentLink(ctx, &models.ParentLink{AccountID: accountID, StudentID: req.StudentID}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create parent link")
	}

	s.recordAudit(ctx, actor, models.AuditActionUpdate, "accounts", accountID)
	return nil
}

// UnlinkChild removes a parent/student association.
func (s *AccountService) UnlinkChild(ctx context.Context, actor *models.Account, accountID, studentID string) error {
	if err := s.gate.Require(ctx, actor, authz.ActionUpdate, authz.Resource{Kind: authz.KindAccount, ID: accountID}); err != nil {
		return err
	}
	if err := s.repo.DeleteParentLink(ctx, accountID, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete parent link")
	}
	s.recordAudit(ctx, actor, models.AuditActionUpdate, "accounts", accountID)
	return nil
}

func (s *AccountService) checkLinkedPerson(ctx context.Context, role models.Role, personID *string) error {
	switch role {
	case models.RoleStudent:
		if personID == nil || *personID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "student accounts require a linked student")
		}
		if _, err := s.students.FindByID(ctx, *personID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrMissingReference, "linked student does not exist")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked student")
		}
	case models.RoleTeacher:
		if personID == nil || *personID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "teacher accounts require a linked teacher")
		}
		if _, err := s.teachers.FindByID(ctx, *personID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrMissingReference, "linked teacher does not exist")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked teacher")
		}
	}
	return nil
}

func (s *AccountService) recordAudit(ctx context.Context, actor *models.Account, action, resource, resourceID string) {
	if actor == nil {
		return
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		AccountID:  &actor.ID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
