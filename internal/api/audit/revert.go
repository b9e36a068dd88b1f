package audit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/middleware"
)

type revertRequest struct {
	EntryID string `json:"entryId" binding:"required"`
}

// RevertHandler restores an entity to the before-state captured in an audit
// entry. The restoration itself is written as a fresh UPDATE entry, so the
// trail stays append-only.
// POST /api/audit/revert
func (h *Handlers) RevertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"entryId is required")
			return
		}

		actor := middleware.CurrentUser(c)

		newEntry, err := h.engine.Revert(c.Request.Context(), req.EntryID, actor,
			c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			switch {
			case errors.Is(err, auditcore.ErrEntryNotFound):
				apierror.Respond(c, http.StatusNotFound, apierror.CodeNotFound,
					"Audit entry not found")
			case errors.Is(err, auditcore.ErrUnauthorized):
				apierror.Respond(c, http.StatusForbidden, apierror.CodePermissionDenied,
					"Only administrators can revert audit entries")
			case errors.Is(err, auditcore.ErrNotRevertible):
				apierror.Respond(c, http.StatusUnprocessableEntity, apierror.CodeRevertFailed,
					"This audit entry cannot be reverted")
			case errors.Is(err, auditcore.ErrEntityMissing):
				apierror.Respond(c, http.StatusConflict, apierror.CodeRevertFailed,
					"The entity referenced by this entry no longer exists")
			case errors.Is(err, auditcore.ErrUnknownEntityType):
				apierror.Respond(c, http.StatusUnprocessableEntity, apierror.CodeRevertFailed,
					"No revert handler is registered for this entity type")
			default:
				apierror.Respond(c, http.StatusInternalServerError, apierror.CodeRevertFailed,
					"Revert failed")
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"message":  "Entry reverted",
			"newEntry": toEntryResponse(newEntry),
		})
	}
}
