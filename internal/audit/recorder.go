// recorder.go implements the best-effort audit log writer. A failed audit write is
// logged and counted but never propagated: the audit trail must not be a single point
// of failure for the business operation that triggered the write.
package audit

import (
	"context"
	"time"

	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/safego"
	"github.com/medtrack/inventory-backend/internal/telemetry"
)

// Entry describes one auditable action. Actor may be nil for system actions.
type Entry struct {
	Actor      *models.User
	Action     string
	EntityType string
	EntityID   string
	Changes    models.ChangeSet
	IPAddress  string
	UserAgent  string
}

// Recorder persists audit entries.
type Recorder struct {
	repo    *repositories.AuditRepository
	timeout time.Duration
}

// NewRecorder constructs a Recorder. timeout bounds each asynchronous write.
func NewRecorder(repo *repositories.AuditRepository, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{repo: repo, timeout: timeout}
}

func (r *Recorder) build(e Entry) *models.AuditLog {
	log := &models.AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Changes:    e.Changes,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
	}
	if e.Actor != nil {
		id := e.Actor.ID
		log.UserID = &id
		// Denormalized actor display fields for immediate UI consumption.
		log.UserName = e.Actor.Name
		log.UserEmail = e.Actor.Email
		log.UserRole = e.Actor.Role
	}
	return log
}

// Record persists an audit entry and returns the persisted row. On failure it
// logs the error, increments the failure counter, and returns nil. Callers
// must treat a nil result as "not recorded" and carry on.
func (r *Recorder) Record(ctx context.Context, e Entry) *models.AuditLog {
	if e.Action == "" {
		return nil
	}

	log := r.build(e)
	if err := r.repo.CreateAuditLog(ctx, log); err != nil {
		telemetry.LogAndCountAuditFailure(e.Action, e.EntityType, err)
		return nil
	}

	telemetry.AuditWritesTotal.WithLabelValues(e.Action).Inc()
	return log
}

// RecordAsync persists an audit entry in a background goroutine, detached from
// the request context so a cancelled request cannot abort the write.
func (r *Recorder) RecordAsync(e Entry) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.Record(ctx, e)
	})
}
