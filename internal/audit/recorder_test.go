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

func newRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRecorder(repositories.NewAuditRepository(db), time.Second), mock
}

func testActor() *models.User {
	return &models.User{
		ID:    "user-1",
		Name:  "Alice",
		Email: "alice@example.com",
		Role:  models.RoleStaff,
	}
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestRecord_Success(t *testing.T) {
	rec, mock := newRecorder(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := rec.Record(context.Background(), Entry{
		Actor:      testActor(),
		Action:     models.ActionUpdate,
		EntityType: "InventoryItem",
		EntityID:   "item-1",
		Changes: models.ChangeSet{
			Before: []byte(`{"quantity":10}`),
			After:  []byte(`{"quantity":25}`),
		},
		IPAddress: "1.2.3.4",
	})
	if log == nil {
		t.Fatal("expected persisted entry")
	}
	if log.UserID == nil || *log.UserID != "user-1" {
		t.Errorf("UserID = %v", log.UserID)
	}
	if log.UserName != "Alice" || log.UserRole != models.RoleStaff {
		t.Errorf("denormalized actor fields not set: %+v", log)
	}
}

func TestRecord_FailureIsSwallowed(t *testing.T) {
	rec, mock := newRecorder(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnError(errors.New("connection refused"))

	// A failed audit write must not panic or propagate; the caller only sees
	// a nil entry.
	log := rec.Record(context.Background(), Entry{
		Action:     models.ActionCreate,
		EntityType: "InventoryItem",
		EntityID:   "item-1",
	})
	if log != nil {
		t.Errorf("expected nil on write failure, got %+v", log)
	}
}

func TestRecord_EmptyActionIgnored(t *testing.T) {
	rec, _ := newRecorder(t)
	if log := rec.Record(context.Background(), Entry{}); log != nil {
		t.Errorf("expected nil for empty action, got %+v", log)
	}
}

func TestRecord_NilActorIsSystemEntry(t *testing.T) {
	rec, mock := newRecorder(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := rec.Record(context.Background(), Entry{
		Action:     models.ActionExport,
		EntityType: "AuditLog",
		EntityID:   "export",
	})
	if log == nil {
		t.Fatal("expected persisted entry")
	}
	if log.UserID != nil {
		t.Errorf("expected nil UserID for system entry, got %v", *log.UserID)
	}
}

// ---------------------------------------------------------------------------
// RecordAsync
// ---------------------------------------------------------------------------

func TestRecordAsync_CompletesInBackground(t *testing.T) {
	rec, mock := newRecorder(t)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec.RecordAsync(Entry{
		Action:     models.ActionDelete,
		EntityType: "InventoryItem",
		EntityID:   "item-9",
	})

	deadline := time.After(2 * time.Second)
	for {
		if err := mock.ExpectationsWereMet(); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("async write never reached the database")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
