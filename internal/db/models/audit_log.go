// Package models - audit_log.go defines the AuditLog model, an append-only record of
// state-changing actions with before/after snapshots of the affected entity. Rows in
// audit_logs are never updated or deleted; the revert engine and export service only
// ever add new entries.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Audit actions. The column is free-text so new actions can be introduced
// without a migration, but everything the server writes uses one of these.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionExport = "EXPORT"
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
)

// KnownActions lists every action the server itself emits, in the order they
// are displayed in filter dropdowns.
var KnownActions = []string{
	ActionCreate, ActionUpdate, ActionDelete, ActionExport, ActionLogin, ActionLogout,
}

// IsKnownAction reports whether action is one of the enumerated audit actions.
func IsKnownAction(action string) bool {
	for _, a := range KnownActions {
		if a == action {
			return true
		}
	}
	return false
}

// ChangeSet is the normalized snapshot pair stored in audit_logs.changes.
// Before is nil for CREATE, After is nil for DELETE, both are set for UPDATE.
// Halves are kept as raw JSON so the audit subsystem never needs to know the
// schema of the entities it tracks.
type ChangeSet struct {
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// IsZero reports whether the change set carries no snapshot at all.
func (c ChangeSet) IsZero() bool {
	return len(c.Before) == 0 && len(c.After) == 0
}

// legacyChanges covers the historical shapes that predate the normalized
// {before, after} schema: direct oldValue/newValue fields, and a nested
// data wrapper used by early export records.
type legacyChanges struct {
	Before   json.RawMessage `json:"before"`
	After    json.RawMessage `json:"after"`
	OldValue json.RawMessage `json:"oldValue"`
	NewValue json.RawMessage `json:"newValue"`
	Data     json.RawMessage `json:"data"`
}

// ParseChangeSet decodes a stored changes payload into the normalized shape.
// The {before, after} form is authoritative; oldValue/newValue and {data}
// payloads written by older ingesters are accepted and mapped onto it so
// historical rows stay readable and revertible.
func ParseChangeSet(raw []byte) (ChangeSet, error) {
	if len(raw) == 0 {
		return ChangeSet{}, nil
	}

	var legacy legacyChanges
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return ChangeSet{}, fmt.Errorf("invalid changes payload: %w", err)
	}

	cs := ChangeSet{Before: legacy.Before, After: legacy.After}
	if cs.IsZero() {
		cs = ChangeSet{Before: legacy.OldValue, After: legacy.NewValue}
	}
	if cs.IsZero() && len(legacy.Data) > 0 {
		// A bare {data} wrapper carries a single post-action snapshot.
		cs = ChangeSet{After: legacy.Data}
	}
	return cs, nil
}

// AuditLog represents one immutable audit trail entry.
type AuditLog struct {
	ID         string
	UserID     *string // nullable for system actions
	Action     string
	EntityType string
	EntityID   string
	Changes    ChangeSet
	IPAddress  string // best-effort, "unknown" when the client IP cannot be determined
	UserAgent  string
	CreatedAt  time.Time

	// Denormalized actor display fields, populated on reads that join users.
	// Never written to audit_logs itself.
	UserName  string
	UserEmail string
	UserRole  string
}
