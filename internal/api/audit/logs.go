// Package audit (under internal/api) implements the audit trail HTTP handlers:
// filtered listing, entry detail, aggregate statistics, export, and revert.
// logs.go covers the read side.
package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
)

// Handlers serves the audit trail API.
type Handlers struct {
	auditRepo *repositories.AuditRepository
	exporter  *auditcore.Exporter
	engine    *auditcore.Engine
}

// NewHandlers creates the audit API handlers.
func NewHandlers(auditRepo *repositories.AuditRepository, exporter *auditcore.Exporter, engine *auditcore.Engine) *Handlers {
	return &Handlers{auditRepo: auditRepo, exporter: exporter, engine: engine}
}

// entryResponse is the wire shape of one audit entry.
type entryResponse struct {
	ID         string           `json:"id"`
	UserID     *string          `json:"userId"`
	UserName   string           `json:"userName,omitempty"`
	UserEmail  string           `json:"userEmail,omitempty"`
	UserRole   string           `json:"userRole,omitempty"`
	Action     string           `json:"action"`
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId"`
	Changes    models.ChangeSet `json:"changes"`
	IPAddress  string           `json:"ipAddress"`
	UserAgent  string           `json:"userAgent"`
	Timestamp  time.Time        `json:"timestamp"`
}

func toEntryResponse(log *models.AuditLog) entryResponse {
	return entryResponse{
		ID:         log.ID,
		UserID:     log.UserID,
		UserName:   log.UserName,
		UserEmail:  log.UserEmail,
		UserRole:   log.UserRole,
		Action:     log.Action,
		EntityType: log.EntityType,
		EntityID:   log.EntityID,
		Changes:    log.Changes,
		IPAddress:  log.IPAddress,
		UserAgent:  log.UserAgent,
		Timestamp:  log.CreatedAt,
	}
}

// parseFilters reads the shared filter query parameters. Dates accept RFC3339
// or plain YYYY-MM-DD; a malformed date is a validation error reported before
// any query runs.
func parseFilters(c *gin.Context) (repositories.AuditFilters, bool) {
	filters := repositories.AuditFilters{
		UserIDs:     splitParam(c, "userIds"),
		Actions:     splitParam(c, "actions"),
		EntityTypes: splitParam(c, "entityTypes"),
		Search:      strings.TrimSpace(c.Query("search")),
	}

	from, ok := parseDateParam(c, "dateFrom", false)
	if !ok {
		return filters, false
	}
	filters.StartDate = from

	to, ok := parseDateParam(c, "dateTo", true)
	if !ok {
		return filters, false
	}
	filters.EndDate = to

	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
			"dateTo must not be before dateFrom")
		return filters, false
	}

	return filters, true
}

// splitParam accepts both repeated query params (?actions=a&actions=b) and a
// single comma-separated value (?actions=a,b).
func splitParam(c *gin.Context, name string) []string {
	values := c.QueryArray(name)
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseDateParam returns (nil, true) when the parameter is absent. endOfDay
// pushes a date-only value to 23:59:59 so "dateTo=2026-01-31" includes that day.
func parseDateParam(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, true
	}

	apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
		"Invalid "+name+": expected RFC3339 timestamp or YYYY-MM-DD date")
	return nil, false
}

func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// ListLogsHandler lists audit entries, filtered and paginated, newest first.
// GET /api/audit/logs
func (h *Handlers) ListLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters, ok := parseFilters(c)
		if !ok {
			return
		}

		page, limit := parsePagination(c)
		sortBy := c.Query("sortBy")
		ascending := strings.EqualFold(c.Query("order"), "asc")

		logs, total, err := h.auditRepo.ListAuditLogs(
			c.Request.Context(), filters, limit, (page-1)*limit, sortBy, ascending)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to query audit logs")
			return
		}

		entries := make([]entryResponse, 0, len(logs))
		for _, log := range logs {
			entries = append(entries, toEntryResponse(log))
		}

		totalPages := (total + limit - 1) / limit

		c.JSON(http.StatusOK, apierror.OK(gin.H{
			"entries": entries,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": totalPages,
			},
		}))
	}
}

// GetDetailsHandler returns the full detail of one audit entry.
// GET /api/audit/details/:id
func (h *Handlers) GetDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entryID := c.Param("id")

		log, err := h.auditRepo.GetAuditLog(c.Request.Context(), entryID)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to load audit entry")
			return
		}
		if log == nil {
			apierror.Respond(c, http.StatusNotFound, apierror.CodeNotFound,
				"Audit entry not found")
			return
		}

		c.JSON(http.StatusOK, apierror.OK(toEntryResponse(log)))
	}
}

// GetStatsHandler returns aggregate statistics over a date window, defaulting
// to the trailing 7 days.
// GET /api/audit/stats
func (h *Handlers) GetStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromPtr, ok := parseDateParam(c, "dateFrom", false)
		if !ok {
			return
		}
		toPtr, ok := parseDateParam(c, "dateTo", true)
		if !ok {
			return
		}

		to := time.Now()
		if toPtr != nil {
			to = *toPtr
		}
		from := to.AddDate(0, 0, -7)
		if fromPtr != nil {
			from = *fromPtr
		}
		if to.Before(from) {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"dateTo must not be before dateFrom")
			return
		}

		stats, err := h.auditRepo.GetStatistics(c.Request.Context(), from, to)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to aggregate audit statistics")
			return
		}

		c.JSON(http.StatusOK, apierror.OK(gin.H{
			"from":     from,
			"to":       to,
			"total":    stats.Total,
			"byAction": stats.ByAction,
			"byDay":    stats.ByDay,
		}))
	}
}
