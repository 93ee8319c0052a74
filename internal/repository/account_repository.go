package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/school-records-api/internal/models"
	"github.com/noah-isme/school-records-api/pkg/database"
)

// AccountRepository manages persistence for accounts, refresh tokens, parent
// links and the audit trail.
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// List returns accounts matching the provided filters.
func (r *AccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.Account, int, error) {
	base := "FROM accounts"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	column := sortColumn(filter.SortBy, map[string]string{
		"email":      "email",
		"full_name":  "full_name",
		"created_at": "created_at",
	}, "created_at")
	order := sortOrder(filter.SortOrder)
	size, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT id, email, password_hash, full_name, role, linked_person_id, active, last_login, created_at, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	return accounts, total, nil
}

// FindByID fetches an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	query := `SELECT id, email, password_hash, full_name, role, linked_person_id, active, last_login, created_at, updated_at
        FROM accounts WHERE id = $1`
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByEmail fetches an account by email, case-insensitively.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	query := `SELECT id, email, password_hash, full_name, role, linked_person_id, active, last_login, created_at, updated_at
        FROM accounts WHERE LOWER(email) = LOWER($1)`
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, err
	}
	return &account, nil
}

// ExistsByEmail checks email uniqueness, optionally excluding an ID.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	query := `INSERT INTO accounts (id, email, password_hash, full_name, role, linked_person_id, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.PasswordHash, account.FullName,
		account.Role, account.LinkedPersonID, account.Active, account.CreatedAt, account.UpdatedAt); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update persists mutable account fields. The role column is intentionally
// absent: roles are fixed at creation.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	query := `UPDATE accounts SET email = $2, full_name = $3, linked_person_id = $4, active = $5, updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, account.ID, account.Email, account.FullName,
		account.LinkedPersonID, account.Active, account.UpdatedAt); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an account.
func (r *AccountRepository) Deactivate(ctx context.Context, id string) error {
	query := "UPDATE accounts SET active = FALSE, updated_at = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the account's last successful login.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE accounts SET last_login = $2 WHERE id = $1", id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	query := "UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token session.
func (r *AccountRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	query := `INSERT INTO refresh_tokens (id, account_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.AccountID, token.Token, token.ExpiresAt,
		token.CreatedAt, token.Revoked, token.IPAddress, token.UserAgent); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken locates a refresh token by its opaque value.
func (r *AccountRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	query := `SELECT id, account_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
        FROM refresh_tokens WHERE token = $1`
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a single token as revoked.
func (r *AccountRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	query := "UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAccountRefreshTokens revokes every live token for an account.
func (r *AccountRepository) RevokeAccountRefreshTokens(ctx context.Context, accountID string) error {
	query := "UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE account_id = $1 AND revoked = FALSE"
	if _, err := r.db.ExecContext(ctx, query, accountID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke account refresh tokens: %w", err)
	}
	return nil
}

// LinkedChildIDs returns the student ids linked to a parent account.
func (r *AccountRepository) LinkedChildIDs(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	query := "SELECT student_id FROM parent_links WHERE account_id = $1 ORDER BY created_at"
	if err := r.db.SelectContext(ctx, &ids, query, accountID); err != nil {
		return nil, fmt.Errorf("list linked children: %w", err)
	}
	return ids, nil
}

// CreateParentLink associates a parent account with a student.
func (r *AccountRepository) CreateParentLink(ctx context.Context, link *models.ParentLink) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now().UTC()
	query := "INSERT INTO parent_links (id, account_id, student_id, created_at) VALUES ($1, $2, $3, $4)"
	if _, err := r.db.ExecContext(ctx, query, link.ID, link.AccountID, link.StudentID, link.CreatedAt); err != nil {
		return fmt.Errorf("create parent link: %w", err)
	}
	return nil
}

// DeleteParentLink removes a parent/student association.
func (r *AccountRepository) DeleteParentLink(ctx context.Context, accountID, studentID string) error {
	query := "DELETE FROM parent_links WHERE account_id = $1 AND student_id = $2"
	if _, err := r.db.ExecContext(ctx, query, accountID, studentID); err != nil {
		return fmt.Errorf("delete parent link: %w", err)
	}
	return nil
}

// CreateAuditLog appends an audit trail record.
func (r *AccountRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO audit_logs (id, account_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query, log.ID, log.AccountID, log.Action, log.Resource, log.ResourceID,
		log.OldValues, log.NewValues, log.IPAddress, log.UserAgent, log.CreatedAt); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
