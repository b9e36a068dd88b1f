// Package auth (under internal/api) implements the authentication endpoints.
package auth

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	coreauth "github.com/medtrack/inventory-backend/internal/auth"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/middleware"
)

// Handlers serves login and logout.
type Handlers struct {
	userRepo     *repositories.UserRepository
	recorder     *auditcore.Recorder
	emailLimiter middleware.Limiter
	tokenExpiry  time.Duration
}

// NewHandlers constructs the auth handlers. emailLimiter throttles attempts
// per account, on top of the per-IP limit applied at the route level.
func NewHandlers(userRepo *repositories.UserRepository, recorder *auditcore.Recorder, emailLimiter middleware.Limiter, tokenExpiry time.Duration) *Handlers {
	return &Handlers{
		userRepo:     userRepo,
		recorder:     recorder,
		emailLimiter: emailLimiter,
		tokenExpiry:  tokenExpiry,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler authenticates a user and issues a JWT. Successful logins reset
// the per-account attempt counter and are recorded in the audit trail.
// POST /api/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"email and password are required")
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))

		if !h.emailLimiter.Check(email) {
			retryAfter := h.emailLimiter.RetryAfter(email)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			apierror.Respond(c, http.StatusTooManyRequests, apierror.CodeRateLimitExceeded,
				"Too many login attempts for this account. Try again later.")
			return
		}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Login failed")
			return
		}

		// Same message for unknown account, wrong password, and deactivated
		// account, so responses do not leak which addresses exist.
		if user == nil || !user.Active || !coreauth.CheckPassword(user.PasswordHash, req.Password) {
			apierror.Respond(c, http.StatusUnauthorized, apierror.CodeAuthRequired,
				"Invalid email or password")
			return
		}

		token, err := coreauth.GenerateJWT(user.ID, user.Email, user.Role, h.tokenExpiry)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeInternal,
				"Failed to issue session token")
			return
		}

		h.emailLimiter.Reset(email)

		h.recorder.Record(c.Request.Context(), auditcore.Entry{
			Actor:      user,
			Action:     models.ActionLogin,
			EntityType: "User",
			EntityID:   user.ID,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, apierror.OK(gin.H{
			"token":     token,
			"expiresIn": int(h.tokenExpiry.Seconds()),
			"user": gin.H{
				"id":    user.ID,
				"name":  user.Name,
				"email": user.Email,
				"role":  user.Role,
			},
		}))
	}
}

// LogoutHandler records the logout in the audit trail. Tokens are stateless,
// so the client is responsible for discarding its copy. The audit write runs
// asynchronously: nothing in the response depends on it, and a client that
// drops the connection mid-logout must not lose the entry.
// POST /api/auth/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user != nil {
			h.recorder.RecordAsync(auditcore.Entry{
				Actor:      user,
				Action:     models.ActionLogout,
				EntityType: "User",
				EntityID:   user.ID,
				IPAddress:  c.ClientIP(),
				UserAgent:  c.Request.UserAgent(),
			})
		}
		c.JSON(http.StatusOK, apierror.OK(gin.H{"message": "Logged out"}))
	}
}
