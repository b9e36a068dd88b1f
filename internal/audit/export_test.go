package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/medtrack/inventory-backend/internal/crypto"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/pkg/checksum"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newExporter(t *testing.T, cipher *crypto.ExportCipher) (*Exporter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := repositories.NewAuditRepository(db)
	return NewExporter(repo, NewRecorder(repo, time.Second), cipher, 1000), mock
}

func testCipher(t *testing.T) *crypto.ExportCipher {
	t.Helper()
	cipher, err := crypto.NewExportCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("NewExportCipher: %v", err)
	}
	return cipher
}

// expectFetch wires the list queries feeding an export of n entries plus the
// self-audit insert that follows a successful render.
func expectFetch(mock sqlmock.Sqlmock, rows *sqlmock.Rows, n int) {
	mock.ExpectQuery("SELECT COUNT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
	mock.ExpectQuery("SELECT(.|\n)*FROM audit_logs a").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func exportRows() *sqlmock.Rows {
	cols := []string{
		"id", "user_id", "action", "entity_type", "entity_id", "changes",
		"ip_address", "user_agent", "created_at", "name", "email", "role",
	}
	return sqlmock.NewRows(cols).
		AddRow("log-1", "user-1", "UPDATE", "InventoryItem", "item-1",
			[]byte(`{"before":{"quantity":10},"after":{"quantity":25}}`),
			"1.2.3.4", "curl/8.0", time.Now(), "Alice", "alice@example.com", "STAFF").
		AddRow("log-2", nil, "DELETE", "InventoryItem", "item-2",
			[]byte(`{"before":{"quantity":3}}`),
			"unknown", "unknown", time.Now(), "", "", "")
}

// ---------------------------------------------------------------------------
// ParseFormat
// ---------------------------------------------------------------------------

func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"csv", "excel", "pdf", "CSV", "Excel"} {
		if _, err := ParseFormat(valid); err != nil {
			t.Errorf("ParseFormat(%q) = %v", valid, err)
		}
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

// ---------------------------------------------------------------------------
// Export: CSV
// ---------------------------------------------------------------------------

func TestExport_CSV(t *testing.T) {
	ex, mock := newExporter(t, nil)
	expectFetch(mock, exportRows(), 2)

	result, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatCSV, false, testActor(), "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rows != 2 {
		t.Errorf("Rows = %d, want 2", result.Rows)
	}
	if result.ContentType != "text/csv" {
		t.Errorf("ContentType = %q", result.ContentType)
	}
	if !strings.HasPrefix(result.Filename, "audit-logs-") || !strings.HasSuffix(result.Filename, ".csv") {
		t.Errorf("Filename = %q", result.Filename)
	}
	if result.Checksum != checksum.SHA256Bytes(result.Data) {
		t.Error("checksum does not match payload")
	}

	records, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("csv parse: %v", err)
	}
	if len(records) != 3 { // header + 2 rows
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if records[1][4] != "UPDATE" {
		t.Errorf("action column = %q", records[1][4])
	}

	// The export itself must have been audited.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Export: Excel / PDF
// ---------------------------------------------------------------------------

func TestExport_Excel(t *testing.T) {
	ex, mock := newExporter(t, nil)
	expectFetch(mock, exportRows(), 2)

	result, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatExcel, false, testActor(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// XLSX files are ZIP archives.
	if !bytes.HasPrefix(result.Data, []byte("PK")) {
		t.Error("expected ZIP container signature")
	}
	if !strings.HasSuffix(result.Filename, ".xlsx") {
		t.Errorf("Filename = %q", result.Filename)
	}
}

func TestExport_PDF(t *testing.T) {
	ex, mock := newExporter(t, nil)
	expectFetch(mock, exportRows(), 2)

	result, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatPDF, false, testActor(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(result.Data, []byte("%PDF")) {
		t.Error("expected PDF signature")
	}
	if result.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", result.ContentType)
	}
}

// ---------------------------------------------------------------------------
// Export: encryption
// ---------------------------------------------------------------------------

func TestExport_EncryptedRoundTrip(t *testing.T) {
	cipher := testCipher(t)
	ex, mock := newExporter(t, cipher)
	expectFetch(mock, exportRows(), 2)

	result, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatCSV, true, testActor(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(result.Filename, ".csv.enc") {
		t.Errorf("Filename = %q", result.Filename)
	}
	if result.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", result.ContentType)
	}

	plain, err := cipher.Open(result.Data)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Contains(plain, []byte("UPDATE")) {
		t.Error("decrypted payload does not look like the CSV")
	}
}

func TestExport_EncryptionUnavailable(t *testing.T) {
	ex, _ := newExporter(t, nil)

	_, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatCSV, true, testActor(), "", "")
	if !errors.Is(err, ErrEncryptionUnavailable) {
		t.Errorf("err = %v, want ErrEncryptionUnavailable", err)
	}
}

// ---------------------------------------------------------------------------
// Export: failures
// ---------------------------------------------------------------------------

func TestExport_FetchFailure(t *testing.T) {
	ex, mock := newExporter(t, nil)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("timeout"))

	if _, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatCSV, false, testActor(), "", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestExport_EmptyResultStillExports(t *testing.T) {
	ex, mock := newExporter(t, nil)
	cols := []string{
		"id", "user_id", "action", "entity_type", "entity_id", "changes",
		"ip_address", "user_agent", "created_at", "name", "email", "role",
	}
	expectFetch(mock, sqlmock.NewRows(cols), 0)

	result, err := ex.Export(context.Background(), repositories.AuditFilters{}, FormatCSV, false, testActor(), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rows != 0 {
		t.Errorf("Rows = %d, want 0", result.Rows)
	}
	records, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("csv parse: %v", err)
	}
	if len(records) != 1 { // header only
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

// ---------------------------------------------------------------------------
// PDF cell truncation
// ---------------------------------------------------------------------------

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate() = %q, want abcde...", got)
	}

	t.Run("cuts on rune boundaries", func(t *testing.T) {
		s := strings.Repeat("ü", 20)
		got := truncate(s, 10)
		if !utf8.ValidString(got) {
			t.Errorf("truncate() produced invalid UTF-8: %q", got)
		}
		if got != strings.Repeat("ü", 7)+"..." {
			t.Errorf("truncate() = %q", got)
		}
	})

	t.Run("tiny max does not panic", func(t *testing.T) {
		if got := truncate("abcdefgh", 1); !utf8.ValidString(got) || len(got) == 0 {
			t.Errorf("truncate() = %q", got)
		}
	})
}
