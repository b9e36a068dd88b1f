// Package admin implements administrative endpoints.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
)

// Handlers serves admin-only endpoints.
type Handlers struct {
	userRepo *repositories.UserRepository
}

// NewHandlers creates the admin API handlers.
func NewHandlers(userRepo *repositories.UserRepository) *Handlers {
	return &Handlers{userRepo: userRepo}
}

type userResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Active: u.Active}
}

// ListUsersHandler lists all user accounts. Used by the audit UI to populate
// the userIds filter.
// GET /api/users
func (h *Handlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.userRepo.ListUsers(c.Request.Context())
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to list users")
			return
		}

		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		c.JSON(http.StatusOK, apierror.OK(gin.H{"users": out}))
	}
}
