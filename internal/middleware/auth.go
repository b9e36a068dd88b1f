// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and request logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RBAC → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user identity and role; RBAC reads from that context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	"github.com/medtrack/inventory-backend/internal/auth"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
)

// Context keys set by AuthMiddleware.
const (
	// ContextUser holds the *models.User of the authenticated caller.
	ContextUser = "user"
	// ContextUserID holds the authenticated caller's user ID string.
	ContextUserID = "user_id"
)

// AuthMiddleware validates the Bearer JWT and loads the caller's account. The
// role is read from the database, not the token, so a role change takes effect
// on the user's next request without reissuing their session.
func AuthMiddleware(userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Authorization header must start with 'Bearer '")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Authorization token is empty")
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Invalid or expired token")
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			apierror.Abort(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to load user")
			return
		}
		if user == nil || !user.Active {
			apierror.Abort(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Account not found or deactivated")
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)

		c.Next()
	}
}
