package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
)

type mockAuthRepo struct {
	accounts      map[string]models.Account
	refreshTokens map[string]models.RefreshToken
	revokedIDs    []string
	revokedAll    []string
	newPassword   string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			account := a
			return &account, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.newPassword = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeAccountRefreshTokens(ctx context.Context, accountID string) error {
	m.revokedAll = append(m.revokedAll, accountID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]models.RefreshToken)
	}
	m.refreshTokens[token.Token] = *token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedIDs = append(m.revokedIDs, id)
	for key, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			m.refreshTokens[key] = t
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

func hashPassword(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "school-records-api",
	}
}

func authFixture(t *testing.T) (*AuthService, *mockAuthRepo) {
	t.Helper()
	repo := &mockAuthRepo{accounts: map[string]models.Account{
		"acc-1": {
			ID:           "acc-1",
			Email:        "teacher@school.test",
			PasswordHash: hashPassword(t, "correct-horse"),
			FullName:     "Ms. Smith",
			Role:         models.RoleTeacher,
			Active:       true,
		},
	}}
	return NewAuthService(repo, nil, nil, testAuthConfig()), repo
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo := authFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "teacher@school.test", Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleTeacher, resp.Account.Role)
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "teacher@school.test", Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "nobody@school.test", Password: "whatever",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := authFixture(t)
	account := repo.accounts["acc-1"]
	account.Active = false
	repo.accounts["acc-1"] = account

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "teacher@school.test", Password: "correct-horse",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := authFixture(t)
	repo.refreshTokens = map[string]models.RefreshToken{
		"old-token": {ID: "rt-1", AccountID: "acc-1", Token: "old-token", ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, repo.revokedIDs, "rt-1")
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)
}

func TestAuthServiceRefreshRevokedToken(t *testing.T) {
	svc, repo := authFixture(t)
	repo.refreshTokens = map[string]models.RefreshToken{
		"old-token": {ID: "rt-1", AccountID: "acc-1", Token: "old-token", Revoked: true, ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthenticated))
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	svc, repo := authFixture(t)
	repo.refreshTokens = map[string]models.RefreshToken{
		"old-token": {ID: "rt-1", AccountID: "acc-1", Token: "old-token", ExpiresAt: time.Now().UTC().Add(-time.Minute)},
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthenticated))
}

func TestAuthServiceLogoutForeignTokenRefused(t *testing.T) {
	svc, repo := authFixture(t)
	repo.refreshTokens = map[string]models.RefreshToken{
		"tok": {ID: "rt-1", AccountID: "acc-1", Token: "tok", ExpiresAt: time.Now().UTC().Add(time.Hour)},
	}

	err := svc.Logout(context.Background(), "tok", "acc-2", models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := authFixture(t)

	err := svc.ChangePassword(context.Background(), "acc-1", models.ChangePasswordRequest{
		OldPassword: "correct-horse", NewPassword: "battery-staple",
	})
	require.NoError(t, err)
	require.NotEmpty(t, repo.newPassword)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.newPassword), []byte("battery-staple")))
	assert.Contains(t, repo.revokedAll, "acc-1")
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	svc, _ := authFixture(t)

	err := svc.ChangePassword(context.Background(), "acc-1", models.ChangePasswordRequest{
		OldPassword: "nope", NewPassword: "battery-staple",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden))
}

func TestAuthServiceValidateTokenBadSignature(t *testing.T) {
	svc, _ := authFixture(t)
	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Minute,
	})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: "teacher@school.test", Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthenticated))
}
