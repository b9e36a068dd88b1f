// export.go implements the audit export service: rendering a filtered slice of the
// audit trail to CSV, Excel, or PDF, optionally sealing the payload with AES-GCM, and
// recording the export itself as an auditable action.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/medtrack/inventory-backend/internal/crypto"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/telemetry"
	"github.com/medtrack/inventory-backend/pkg/checksum"
)

// Format identifies an export rendering.
type Format string

// Supported export formats.
const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

// ParseFormat validates a requested format string before any data is fetched.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatExcel, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType returns the MIME type for the rendered (unencrypted) payload.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

func (f Format) extension() string {
	if f == FormatExcel {
		return "xlsx"
	}
	return string(f)
}

// Result is a rendered export ready to be served as an attachment.
type Result struct {
	Data        []byte
	Filename    string
	ContentType string
	Checksum    string // SHA-256 of Data, for integrity verification by the receiver
	Rows        int
}

// Exporter renders audit log exports.
type Exporter struct {
	repo     *repositories.AuditRepository
	recorder *Recorder
	cipher   *crypto.ExportCipher // nil when encrypted exports are not configured
	maxRows  int
}

// NewExporter constructs an Exporter. maxRows is the hard cap on rows fetched
// per export; cipher may be nil when no encryption key is configured.
func NewExporter(repo *repositories.AuditRepository, recorder *Recorder, cipher *crypto.ExportCipher, maxRows int) *Exporter {
	if maxRows <= 0 {
		maxRows = 50000
	}
	return &Exporter{repo: repo, recorder: recorder, cipher: cipher, maxRows: maxRows}
}

var exportHeader = []string{
	"ID", "Timestamp", "User", "Email", "Action",
	"Entity Type", "Entity ID", "Before", "After", "IP Address", "User Agent",
}

func exportRow(log *models.AuditLog) []string {
	return []string{
		log.ID,
		log.CreatedAt.UTC().Format(time.RFC3339),
		log.UserName,
		log.UserEmail,
		log.Action,
		log.EntityType,
		log.EntityID,
		string(log.Changes.Before),
		string(log.Changes.After),
		log.IPAddress,
		log.UserAgent,
	}
}

// Export renders the audit entries matching filters, bounded by the configured
// row cap. The export is recorded via the best-effort writer as an EXPORT
// audit entry attributed to actor.
func (x *Exporter) Export(ctx context.Context, filters repositories.AuditFilters, format Format, encrypted bool, actor *models.User, ipAddress, userAgent string) (*Result, error) {
	if encrypted && x.cipher == nil {
		return nil, ErrEncryptionUnavailable
	}

	logs, err := x.repo.ListAuditLogsUnpaged(ctx, filters, x.maxRows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit entries: %w", err)
	}

	var data []byte
	switch format {
	case FormatCSV:
		data, err = renderCSV(logs)
	case FormatExcel:
		data, err = renderExcel(logs)
	case FormatPDF:
		data, err = renderPDF(logs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		slog.Error("export rendering failed", "format", format, "rows", len(logs), "error", err)
		return nil, fmt.Errorf("%w: %s", ErrExportFailed, format)
	}

	filename := fmt.Sprintf("audit-logs-%s.%s", time.Now().UTC().Format("20060102-150405"), format.extension())
	contentType := format.ContentType()

	if encrypted {
		data, err = x.cipher.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: encryption: %v", ErrExportFailed, err)
		}
		filename += ".enc"
		contentType = "application/octet-stream"
	}

	result := &Result{
		Data:        data,
		Filename:    filename,
		ContentType: contentType,
		Checksum:    checksum.SHA256Bytes(data),
		Rows:        len(logs),
	}

	telemetry.AuditExportsTotal.WithLabelValues(string(format)).Inc()

	// The export itself is auditable: record which filters left the system and
	// how many rows they matched.
	meta, _ := json.Marshal(map[string]interface{}{
		"format":    format,
		"encrypted": encrypted,
		"rows":      len(logs),
		"filters":   describeFilters(filters),
		"checksum":  result.Checksum,
	})
	x.recorder.Record(ctx, Entry{
		Actor:      actor,
		Action:     models.ActionExport,
		EntityType: "AuditLog",
		EntityID:   "export",
		Changes:    models.ChangeSet{After: meta},
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	})

	return result, nil
}

func describeFilters(f repositories.AuditFilters) map[string]interface{} {
	desc := make(map[string]interface{})
	if len(f.UserIDs) > 0 {
		desc["userIds"] = f.UserIDs
	}
	if len(f.Actions) > 0 {
		desc["actions"] = f.Actions
	}
	if len(f.EntityTypes) > 0 {
		desc["entityTypes"] = f.EntityTypes
	}
	if f.Search != "" {
		desc["search"] = f.Search
	}
	if f.StartDate != nil {
		desc["dateFrom"] = f.StartDate.UTC().Format(time.RFC3339)
	}
	if f.EndDate != nil {
		desc["dateTo"] = f.EndDate.UTC().Format(time.RFC3339)
	}
	return desc
}

func renderCSV(logs []*models.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, log := range logs {
		if err := w.Write(exportRow(log)); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderExcel(logs []*models.AuditLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Audit Logs"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return nil, err
		}
	}

	for row, log := range logs {
		for col, value := range exportRow(log) {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF exports are a summary table: snapshots are truncated to keep rows on one
// line. Full fidelity is what CSV and Excel are for.
func renderPDF(logs []*models.AuditLog) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Audit Log Export", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Audit Log Export")
	pdf.Ln(12)

	cols := []struct {
		title string
		width float64
	}{
		{"Timestamp", 38},
		{"User", 40},
		{"Action", 20},
		{"Entity", 45},
		{"Changes", 134},
	}

	pdf.SetFont("Helvetica", "B", 8)
	for _, col := range cols {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 7)
	for _, log := range logs {
		entity := log.EntityType + "/" + log.EntityID
		changes := truncate(string(log.Changes.Before)+" -> "+string(log.Changes.After), 120)

		pdf.CellFormat(cols[0].width, 6, log.CreatedAt.UTC().Format("2006-01-02 15:04:05"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[1].width, 6, truncate(log.UserName, 30), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[2].width, 6, log.Action, "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[3].width, 6, truncate(entity, 34), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[4].width, 6, changes, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncate shortens s to at most max runes, marking the cut with an ellipsis.
// Counting runes rather than bytes keeps multi-byte characters intact.
func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
