// rbac.go implements role-based authorization middleware. Roles are checked at
// request time from the user row loaded by AuthMiddleware, so permission changes
// apply immediately without token rotation.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	"github.com/medtrack/inventory-backend/internal/db/models"
)

// CurrentUser returns the authenticated user set by AuthMiddleware, or nil.
func CurrentUser(c *gin.Context) *models.User {
	val, exists := c.Get(ContextUser)
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// RequireRole allows the request through only when the authenticated user
// holds one of the given roles. The denial names the roles required so the
// failure is actionable.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Authentication required")
			return
		}

		if !user.HasRole(roles...) {
			apierror.Abort(c, http.StatusForbidden, apierror.CodePermissionDenied,
				"This operation requires one of the following roles: "+strings.Join(roles, ", "))
			return
		}

		c.Next()
	}
}
