package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var auditEntryCols = []string{
	"id", "user_id", "action", "entity_type", "entity_id", "changes",
	"ip_address", "user_agent", "created_at", "name", "email", "role",
}

var itemCols = []string{
	"id", "sku", "name", "category", "quantity", "unit", "location",
	"expires_at", "created_at", "updated_at",
}

func newEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	auditRepo := repositories.NewAuditRepository(db)
	itemRepo := repositories.NewInventoryRepository(db)
	return NewEngine(auditRepo, itemRepo), mock
}

func admin() *models.User {
	return &models.User{ID: "admin-1", Name: "Root", Email: "root@example.com", Role: models.RoleAdmin}
}

func entryRow(action, changes string) *sqlmock.Rows {
	return sqlmock.NewRows(auditEntryCols).
		AddRow("entry-1", "user-1", action, "InventoryItem", "item-1",
			[]byte(changes), "1.2.3.4", "curl/8.0", time.Now(),
			"Alice", "alice@example.com", "STAFF")
}

func liveItemRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(itemCols).
		AddRow("item-1", "SKU-001", "Saline 0.9%", "fluids", 25, "box", "A-03",
			nil, now.Add(-time.Hour), now)
}

func expectGetEntry(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(`WHERE a\.id = \$1`).WithArgs("entry-1").WillReturnRows(rows)
}

// ---------------------------------------------------------------------------
// Precondition failures (no transaction, no state change)
// ---------------------------------------------------------------------------

func TestRevert_EntryNotFound(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, sqlmock.NewRows(auditEntryCols))

	_, err := engine.Revert(context.Background(), "entry-1", admin(), "", "")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestRevert_NonAdminRejected(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"quantity":10},"after":{"quantity":25}}`))

	auditor := &models.User{ID: "u2", Role: models.RoleAuditor}
	_, err := engine.Revert(context.Background(), "entry-1", auditor, "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	// No transaction must have been opened.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_NilActorRejected(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"quantity":10}}`))

	_, err := engine.Revert(context.Background(), "entry-1", nil, "", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRevert_CreateEntryNotRevertible(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("CREATE", `{"after":{"quantity":40}}`))

	_, err := engine.Revert(context.Background(), "entry-1", admin(), "", "")
	if !errors.Is(err, ErrNotRevertible) {
		t.Errorf("err = %v, want ErrNotRevertible", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_MissingBeforeSnapshotNotRevertible(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("UPDATE", `{"after":{"quantity":25}}`))

	_, err := engine.Revert(context.Background(), "entry-1", admin(), "", "")
	if !errors.Is(err, ErrNotRevertible) {
		t.Errorf("err = %v, want ErrNotRevertible", err)
	}
}

func TestRevert_UnknownEntityType(t *testing.T) {
	engine, mock := newEngine(t)
	rows := sqlmock.NewRows(auditEntryCols).
		AddRow("entry-1", "user-1", "UPDATE", "PurchaseOrder", "po-1",
			[]byte(`{"before":{"status":"open"}}`), "1.2.3.4", "curl/8.0", time.Now(),
			"", "", "")
	expectGetEntry(mock, rows)

	_, err := engine.Revert(context.Background(), "entry-1", admin(), "", "")
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("err = %v, want ErrUnknownEntityType", err)
	}
}

// ---------------------------------------------------------------------------
// Transactional apply
// ---------------------------------------------------------------------------

func TestRevert_Success(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"sku":"SKU-001","name":"Saline 0.9%","category":"fluids","quantity":10,"unit":"box","location":"A-03"},"after":{"quantity":25}}`))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("item-1").WillReturnRows(liveItemRow())
	mock.ExpectExec("UPDATE inventory_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	newEntry, err := engine.Revert(context.Background(), "entry-1", admin(), "9.8.7.6", "test-agent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newEntry.Action != models.ActionUpdate {
		t.Errorf("new entry action = %s, want UPDATE", newEntry.Action)
	}
	if newEntry.UserID == nil || *newEntry.UserID != "admin-1" {
		t.Errorf("revert must be attributed to the acting admin, got %v", newEntry.UserID)
	}
	if len(newEntry.Changes.Before) == 0 || len(newEntry.Changes.After) == 0 {
		t.Errorf("new entry must carry both snapshots: %+v", newEntry.Changes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_EntityMissing(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("DELETE", `{"before":{"quantity":10}}`))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows(itemCols))
	mock.ExpectRollback()

	_, err := engine.Revert(context.Background(), "entry-1", admin(), "", "")
	if !errors.Is(err, ErrEntityMissing) {
		t.Errorf("err = %v, want ErrEntityMissing", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_AuditWriteFailureRollsBack(t *testing.T) {
	engine, mock := newEngine(t)
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"quantity":10}}`))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(liveItemRow())
	mock.ExpectExec("UPDATE inventory_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	// The re-audit is part of the atomic unit: if it fails, the state write
	// must not survive either.
	if _, err := engine.Revert(context.Background(), "entry-1", admin(), "", ""); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_PartialSnapshotKeepsUnmentionedFields(t *testing.T) {
	engine, mock := newEngine(t)
	// Legacy entries often captured only the changed field. Restoring this one
	// must rewrite the quantity and nothing else.
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"quantity":10}}`))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(liveItemRow())
	mock.ExpectExec("UPDATE inventory_items").
		WithArgs("item-1", "SKU-001", "Saline 0.9%", "fluids", 10, "box", "A-03",
			nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if _, err := engine.Revert(context.Background(), "entry-1", admin(), "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRevert_SnapshotPreservesIdentity(t *testing.T) {
	engine, mock := newEngine(t)
	// Snapshot claims a different id; the restored row must keep the live
	// item's identity and creation time.
	expectGetEntry(mock, entryRow("UPDATE", `{"before":{"id":"spoofed","sku":"SKU-001","quantity":10}}`))

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(liveItemRow())
	mock.ExpectExec("UPDATE inventory_items").
		WithArgs("item-1", "SKU-001", sqlmock.AnyArg(), sqlmock.AnyArg(), 10,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if _, err := engine.Revert(context.Background(), "entry-1", admin(), "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
