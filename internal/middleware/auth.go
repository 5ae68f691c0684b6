package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"robot-market/internal/auth"
	"robot-market/internal/models"
)

const (
	UserIDKey      = "userID"
	AccountTypeKey = "accountType"
	TokenKey       = "sessionToken"
	PrincipalKey   = "principal"
)

// Authenticator resolves session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthMiddleware validates the Authorization header against the session store.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		principal, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to validate session"})
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(AccountTypeKey, principal.AccountType)
		c.Set(TokenKey, token)
		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// RequireSeller rejects callers whose account type is not seller. It must run after AuthMiddleware.
func RequireSeller() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountType, _ := c.Get(AccountTypeKey)
		if accountType != models.AccountSeller {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "seller account required"})
			return
		}
		c.Next()
	}
}
