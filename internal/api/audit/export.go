package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/middleware"
)

// exportRequest is the POST /api/audit/export body. Filters mirror the list
// endpoint's query parameters.
type exportRequest struct {
	Format    string        `json:"format" binding:"required"`
	Encrypted bool          `json:"encrypted"`
	Filters   exportFilters `json:"filters"`
}

type exportFilters struct {
	DateFrom    string   `json:"dateFrom"`
	DateTo      string   `json:"dateTo"`
	UserIDs     []string `json:"userIds"`
	Actions     []string `json:"actions"`
	EntityTypes []string `json:"entityTypes"`
	Search      string   `json:"search"`
}

func (f exportFilters) toRepoFilters() (repositories.AuditFilters, error) {
	filters := repositories.AuditFilters{
		UserIDs:     f.UserIDs,
		Actions:     f.Actions,
		EntityTypes: f.EntityTypes,
		Search:      f.Search,
	}

	var err error
	if filters.StartDate, err = parseDateValue(f.DateFrom, false); err != nil {
		return filters, err
	}
	if filters.EndDate, err = parseDateValue(f.DateTo, true); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseDateValue(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ExportHandler renders the matching audit entries as a downloadable file.
// The response body is the raw file; metadata travels in headers so clients
// can stream straight to disk.
// POST /api/audit/export
func (h *Handlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"Invalid export request: "+err.Error())
			return
		}

		format, err := auditcore.ParseFormat(req.Format)
		if err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"Unsupported export format: "+req.Format)
			return
		}

		filters, err := req.Filters.toRepoFilters()
		if err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"Invalid filter date: expected RFC3339 timestamp or YYYY-MM-DD date")
			return
		}

		actor := middleware.CurrentUser(c)

		result, err := h.exporter.Export(c.Request.Context(), filters, format, req.Encrypted,
			actor, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			switch {
			case errors.Is(err, auditcore.ErrEncryptionUnavailable):
				apierror.Respond(c, http.StatusBadRequest, apierror.CodeExportFailed,
					"Encrypted export requested but no encryption key is configured")
			default:
				apierror.Respond(c, http.StatusInternalServerError, apierror.CodeExportFailed,
					"Failed to generate export")
			}
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
		c.Header("X-Export-Checksum", result.Checksum)
		c.Header("X-Export-Rows", strconv.Itoa(result.Rows))
		c.Data(http.StatusOK, result.ContentType, result.Data)
	}
}
