package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gestock/gestock-api/internal/auth"
	"github.com/gestock/gestock-api/internal/constants"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// TokenVerifier validates a raw bearer token into a Principal.
type TokenVerifier interface {
	Verify(ctx *gin.Context, rawToken string) (*auth.Principal, error)
}

// verifierAdapter lets *auth.Verifier satisfy TokenVerifier with a request
// context.
type verifierAdapter struct {
	verifier *auth.Verifier
}

func (a verifierAdapter) Verify(c *gin.Context, rawToken string) (*auth.Principal, error) {
	return a.verifier.Verify(c.Request.Context(), rawToken)
}

func NewTokenVerifier(v *auth.Verifier) TokenVerifier {
	return verifierAdapter{verifier: v}
}

// AuthRequired extracts the bearer token, verifies it, and stores the
// derived Principal in the request context.
func AuthRequired(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			if logger != nil {
				logger.Debug("Token extraction failed", zap.Error(err))
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		principal, err := verifier.Verify(c, token)
		if err != nil {
			if logger != nil {
				logger.Info("Token validation failed", zap.Error(err))
			}
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Set("user_id", principal.Subject)
		c.Set("user_email", principal.Email)

		c.Next()
	}
}

// AuthorityRequired gates a route on one of the given authorities.
func AuthorityRequired(authorities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
				"code":  "ACCESS_DENIED",
			})
			c.Abort()
			return
		}

		for _, authority := range authorities {
			if principal.HasAuthority(authority) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error": "Insufficient role privileges",
			"code":  "INSUFFICIENT_ROLES",
		})
		c.Abort()
	}
}

// GetPrincipal returns the authenticated principal stored by AuthRequired.
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*auth.Principal)
	return principal, ok
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header missing")
	}

	if !strings.HasPrefix(strings.ToLower(authHeader), strings.ToLower(constants.BearerTokenPrefix)) {
		return "", fmt.Errorf("invalid authorization header format")
	}

	parts := strings.SplitN(authHeader, " ", 3)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}
