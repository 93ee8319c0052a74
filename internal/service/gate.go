package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/school-records-api/internal/authz"
	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type linkageAccountRepository interface {
	LinkedChildIDs(ctx context.Context, accountID string) ([]string, error)
}

type linkageClassRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
}

type linkageStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// Gate wraps the authorization matrix with linkage loading. Relationships
// are fetched fresh on every check so role and link changes apply to the
// very next call.
type Gate struct {
	accounts linkageAccountRepository
	classes  linkageClassRepository
	students linkageStudentRepository
	metrics  *MetricsService
	logger   *zap.Logger
}

// WithMetrics attaches an optional collector for denial counts.
func (g *Gate) WithMetrics(m *MetricsService) *Gate {
	g.metrics = m
	return g
}

// NewGate constructs a Gate.
func NewGate(accounts linkageAccountRepository, classes linkageClassRepository, students linkageStudentRepository, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{accounts: accounts, classes: classes, students: students, logger: logger}
}

// Linkage loads the acting account's relationships for a decision.
func (g *Gate) Linkage(ctx context.Context, account *models.Account) (authz.Linkage, error) {
	link := authz.Linkage{}
	if account == nil {
		return link, nil
	}
	if account.LinkedPersonID != nil {
		link.PersonID = *account.LinkedPersonID
	}

	switch account.Role {
	case models.RoleStudent:
		classID, err := g.studentClassID(ctx, link.PersonID)
		if err != nil {
			return link, err
		}
		link.ClassID = classID
	case models.RoleParent:
		children, err := g.accounts.LinkedChildIDs(ctx, account.ID)
		if err != nil {
			return link, fmt.Errorf("load parent links: %w", err)
		}
		link.ChildIDs = children
		for _, childID := range children {
			classID, err := g.studentClassID(ctx, childID)
			if err != nil {
				return link, err
			}
			if classID != "" {
				link.ChildClassIDs = append(link.ChildClassIDs, classID)
			}
		}
	case models.RoleTeacher:
		if link.PersonID == "" {
			break
		}
		classes, err := g.classes.ListByTeacher(ctx, link.PersonID)
		if err != nil {
			return link, fmt.Errorf("load taught classes: %w", err)
		}
		for _, class := range classes {
			link.ClassIDs = append(link.ClassIDs, class.ID)
		}
	}
	return link, nil
}

// studentClassID returns the class a student belongs to, or "" when the
// student has no class or does not exist.
func (g *Gate) studentClassID(ctx context.Context, studentID string) (string, error) {
	if g.students == nil || studentID == "" {
		return "", nil
	}
	student, err := g.students.FindByID(ctx, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load student class: %w", err)
	}
	if student.ClassID == nil {
		return "", nil
	}
	return *student.ClassID, nil
}

// Require evaluates the matrix and converts a denial into a typed error.
func (g *Gate) Require(ctx context.Context, account *models.Account, action authz.Action, res authz.Resource) error {
	if account == nil {
		return appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required")
	}

	link, err := g.Linkage(ctx, account)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account relationships")
	}

	decision := authz.Authorize(account, action, res, link)
	if decision.Allowed {
		return nil
	}

	if g.metrics != nil {
		g.metrics.RecordDenied(string(account.Role), string(res.Kind))
	}
	g.logger.Info("operation denied",
		zap.String("account_id", account.ID),
		zap.String("role", string(account.Role)),
		zap.String("action", string(action)),
		zap.String("resource", string(res.Kind)),
		zap.String("reason", string(decision.Reason)),
	)

	switch decision.Reason {
	case authz.ReasonNotOwner:
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("account does not own this %s", res.Kind))
	case authz.ReasonNotLinked:
		return appErrors.Clone(appErrors.ErrForbidden, "account is not linked to this student")
	default:
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not %s %s", account.Role, action, res.Kind))
	}
}
