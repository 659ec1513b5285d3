package middleware

import (
	"context"
	"net/http"

	"github.com/gestock/gestock-api/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Provisioner is the single entry point the interceptor drives once per
// authenticated request.
type Provisioner interface {
	Provision(ctx context.Context, id, firstName, lastName, email string, role models.Role) (*models.User, error)
}

// UserProvisioning keeps the local user directory in sync with the claims of
// every authenticated request. A token without an email skips provisioning
// (logged, not fatal); a storage failure aborts the request.
func UserProvisioning(users Provisioner, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			c.Next()
			return
		}

		if principal.Email == "" {
			logger.Warn("Provisioning skipped, token carries no email",
				zap.String("subject", principal.Subject))
			c.Next()
			return
		}

		role := models.GuessRole(principal.RealmRoles)
		if _, err := users.Provision(c.Request.Context(), principal.Subject,
			principal.GivenName, principal.FamilyName, principal.Email, role); err != nil {
			logger.Error("User provisioning failed",
				zap.String("subject", principal.Subject),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "PROVISIONING_FAILED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
