// revert.go implements the change revert engine: restoring an entity to the prior
// state captured by an UPDATE or DELETE audit entry, and recording the revert itself
// as a new entry. The state write and the new audit entry share one transaction so no
// observer can see a reverted entity without a trail entry for it (or vice versa).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/telemetry"
)

// EntityReverter applies a prior-state snapshot onto a live entity inside tx.
// It returns the entity's state immediately before the write and the state as
// restored, both serialized, for the revert's own audit entry.
type EntityReverter interface {
	Apply(ctx context.Context, tx *sql.Tx, entityID string, snapshot json.RawMessage) (current, restored json.RawMessage, err error)
}

// Engine performs revert operations.
type Engine struct {
	auditRepo *repositories.AuditRepository
	beginTx   func(context.Context) (*sql.Tx, error)
	reverters map[string]EntityReverter
}

// NewEngine constructs a revert Engine. Entity kinds are registered explicitly
// with RegisterReverter; reverting an entry for an unregistered kind fails.
func NewEngine(auditRepo *repositories.AuditRepository, items *repositories.InventoryRepository) *Engine {
	e := &Engine{
		auditRepo: auditRepo,
		beginTx:   items.BeginTx,
		reverters: make(map[string]EntityReverter),
	}
	e.RegisterReverter("InventoryItem", &inventoryReverter{items: items})
	return e
}

// RegisterReverter wires a reverter for one entity type.
func (e *Engine) RegisterReverter(entityType string, r EntityReverter) {
	e.reverters[entityType] = r
}

// Revert restores the prior state recorded by the audit entry entryID and
// returns the new audit entry describing the revert. Single attempt, no retry:
// any failure before the commit leaves no partial effect.
func (e *Engine) Revert(ctx context.Context, entryID string, actor *models.User, ipAddress, userAgent string) (*models.AuditLog, error) {
	newEntry, err := e.revert(ctx, entryID, actor, ipAddress, userAgent)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	telemetry.AuditRevertsTotal.WithLabelValues(outcome).Inc()
	return newEntry, err
}

func (e *Engine) revert(ctx context.Context, entryID string, actor *models.User, ipAddress, userAgent string) (*models.AuditLog, error) {
	// Lookup.
	entry, err := e.auditRepo.GetAuditLog(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entry: %w", err)
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	// Authorize. Reverts rewrite live data, so only admins may perform them
	// regardless of what the route-level role gate allowed through.
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, ErrUnauthorized
	}

	// Eligibility. CREATE entries carry no prior state; undoing a creation is a
	// delete, which this engine deliberately does not perform.
	if entry.Action != models.ActionUpdate && entry.Action != models.ActionDelete {
		return nil, fmt.Errorf("%w: action %s has no prior state to restore", ErrNotRevertible, entry.Action)
	}
	if len(entry.Changes.Before) == 0 {
		return nil, fmt.Errorf("%w: entry carries no before snapshot", ErrNotRevertible)
	}

	reverter, ok := e.reverters[entry.EntityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entry.EntityType)
	}

	// Apply + re-audit as one atomic unit.
	tx, err := e.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, restored, err := reverter.Apply(ctx, tx, entry.EntityID, entry.Changes.Before)
	if err != nil {
		return nil, err
	}

	actorID := actor.ID
	newEntry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.ActionUpdate,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    models.ChangeSet{Before: current, After: restored},
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		UserName:   actor.Name,
		UserEmail:  actor.Email,
		UserRole:   actor.Role,
	}
	if err := e.auditRepo.CreateAuditLogTx(ctx, tx, newEntry); err != nil {
		return nil, fmt.Errorf("failed to record revert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revert: %w", err)
	}

	return newEntry, nil
}

// inventoryReverter restores InventoryItem snapshots.
type inventoryReverter struct {
	items *repositories.InventoryRepository
}

func (r *inventoryReverter) Apply(ctx context.Context, tx *sql.Tx, entityID string, snapshot json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	live, err := r.items.GetItemTx(ctx, tx, entityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load inventory item: %w", err)
	}
	if live == nil {
		return nil, nil, fmt.Errorf("%w: InventoryItem %s", ErrEntityMissing, entityID)
	}

	// Seed from the live row so a partial snapshot only rewrites the fields it
	// mentions. Legacy entries often captured just the changed field.
	prior := *live
	if err := json.Unmarshal(snapshot, &prior); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed before snapshot: %v", ErrNotRevertible, err)
	}
	// Identity and creation time are immutable regardless of the snapshot.
	prior.ID = live.ID
	prior.CreatedAt = live.CreatedAt

	current, err := json.Marshal(live)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize current state: %w", err)
	}

	if err := r.items.UpdateItemTx(ctx, tx, &prior); err != nil {
		return nil, nil, fmt.Errorf("failed to restore inventory item: %w", err)
	}

	restored, err := json.Marshal(&prior)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize restored state: %w", err)
	}

	return current, restored, nil
}
