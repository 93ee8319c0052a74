package middleware

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-records-api/internal/models"
	appErrors "github.com/noah-isme/school-records-api/pkg/errors"
	"github.com/noah-isme/school-records-api/pkg/response"
)

// ContextAccountKey is the gin context key storing the resolved account.
const ContextAccountKey = "currentAccount"

type accountLoader interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

// ResolveAccount loads the acting account from the store on every request so
// deactivation and link changes take effect immediately, not at the next
// token refresh.
func ResolveAccount(accounts accountLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextClaimsKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		account, err := accounts.FindByID(c.Request.Context(), claims.AccountID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "account no longer exists"))
			} else {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account"))
			}
			c.Abort()
			return
		}
		if !account.Active {
			response.Error(c, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive"))
			c.Abort()
			return
		}

		c.Set(ContextAccountKey, account)
		c.Next()
	}
}

// AccountFromContext returns the resolved account, nil when absent.
func AccountFromContext(c *gin.Context) *models.Account {
	value, exists := c.Get(ContextAccountKey)
	if !exists {
		return nil
	}
	account, ok := value.(*models.Account)
	if !ok {
		return nil
	}
	return account
}
