// audit_repository.go implements AuditRepository, providing database queries for writing
// and retrieving audit log entries with filtered, paginated listing and per-window
// aggregate statistics. The table is append-only: this repository intentionally exposes
// no update or delete operations.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medtrack/inventory-backend/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs. Zero-valued fields
// are not applied.
type AuditFilters struct {
	UserIDs     []string
	Actions     []string
	EntityTypes []string
	Search      string // matched against entity type, entity id, and serialized changes
	StartDate   *time.Time
	EndDate     *time.Time
}

// Sort columns accepted by ListAuditLogs. Anything else falls back to created_at.
var auditSortColumns = map[string]string{
	"timestamp":  "a.created_at",
	"action":     "a.action",
	"entityType": "a.entity_type",
}

const auditSelectColumns = `
	a.id, a.user_id, a.action, a.entity_type, a.entity_id, a.changes,
	a.ip_address, a.user_agent, a.created_at,
	COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.role, '')
`

// CreateAuditLog appends a new audit log entry using the repository's own handle.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return r.create(ctx, r.db, log)
}

// CreateAuditLogTx appends a new audit log entry within an existing transaction.
// The revert engine uses this to make "apply prior state" and "record the revert"
// a single atomic unit.
func (r *AuditRepository) CreateAuditLogTx(ctx context.Context, tx *sql.Tx, log *models.AuditLog) error {
	return r.create(ctx, tx, log)
}

// execer is the subset of sql.DB/sql.Tx needed for inserts.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *AuditRepository) create(ctx context.Context, ex execer, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if log.IPAddress == "" {
		log.IPAddress = "unknown"
	}
	if log.UserAgent == "" {
		log.UserAgent = "unknown"
	}

	var changesJSON []byte
	if !log.Changes.IsZero() {
		var err error
		changesJSON, err = json.Marshal(log.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, changes, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := ex.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		changesJSON,
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)

	return err
}

// ListAuditLogs retrieves audit logs with optional filters and pagination,
// newest first unless sortBy overrides the order. It returns the matching page
// and the total number of rows matching the filters.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int, sortBy string, ascending bool) ([]*models.AuditLog, int, error) {
	where, args := buildAuditWhere(filters)

	countQuery := `SELECT COUNT(*) FROM audit_logs a` + where

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderCol, ok := auditSortColumns[sortBy]
	if !ok {
		orderCol = "a.created_at"
	}
	direction := "DESC"
	if ascending {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d`,
		auditSelectColumns, where, orderCol, direction, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}

	return logs, total, rows.Err()
}

// ListAuditLogsUnpaged retrieves every audit log matching the filters, newest
// first, capped at maxRows. The export service uses this; maxRows is the hard
// memory bound for exports, not a page size.
func (r *AuditRepository) ListAuditLogsUnpaged(ctx context.Context, filters AuditFilters, maxRows int) ([]*models.AuditLog, error) {
	logs, _, err := r.ListAuditLogs(ctx, filters, maxRows, 0, "", false)
	return logs, err
}

// GetAuditLog retrieves a single audit log entry by ID, with denormalized actor
// fields joined in. Returns (nil, nil) when no entry exists.
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID string) (*models.AuditLog, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`, auditSelectColumns)

	row := r.db.QueryRowContext(ctx, query, logID)
	log, err := scanAuditLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ActionCount is the number of audit entries recorded for one action type.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// DayCount is the number of audit entries recorded on one calendar day.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// AuditStatistics aggregates audit activity over a date window.
type AuditStatistics struct {
	Total    int64         `json:"total"`
	ByAction []ActionCount `json:"byAction"`
	ByDay    []DayCount    `json:"byDay"`
}

// GetStatistics returns entry counts grouped by action and by day within
// [from, to].
func (r *AuditRepository) GetStatistics(ctx context.Context, from, to time.Time) (*AuditStatistics, error) {
	stats := &AuditStatistics{
		ByAction: []ActionCount{},
		ByDay:    []DayCount{},
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE created_at >= $1 AND created_at <= $2`,
		from, to,
	).Scan(&stats.Total)
	if err != nil {
		return nil, err
	}

	actionRows, err := r.db.QueryContext(ctx, `
		SELECT action, COUNT(*) AS count
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY action
		ORDER BY count DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer actionRows.Close()
	for actionRows.Next() {
		var entry ActionCount
		if err := actionRows.Scan(&entry.Action, &entry.Count); err != nil {
			return nil, err
		}
		stats.ByAction = append(stats.ByAction, entry)
	}
	if err := actionRows.Err(); err != nil {
		return nil, err
	}

	dayRows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(created_at::date, 'YYYY-MM-DD') AS day, COUNT(*) AS count
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY day
		ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var entry DayCount
		if err := dayRows.Scan(&entry.Day, &entry.Count); err != nil {
			return nil, err
		}
		stats.ByDay = append(stats.ByDay, entry)
	}

	return stats, dayRows.Err()
}

// buildAuditWhere assembles the WHERE clause shared by the count and page
// queries. Set filters use = ANY so multi-valued selections stay a single
// parameter each.
func buildAuditWhere(filters AuditFilters) (string, []interface{}) {
	clauses := make([]string, 0)
	args := make([]interface{}, 0)

	next := func() int { return len(args) + 1 }

	if len(filters.UserIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("a.user_id = ANY($%d)", next()))
		args = append(args, pq.Array(filters.UserIDs))
	}
	if len(filters.Actions) > 0 {
		clauses = append(clauses, fmt.Sprintf("a.action = ANY($%d)", next()))
		args = append(args, pq.Array(filters.Actions))
	}
	if len(filters.EntityTypes) > 0 {
		clauses = append(clauses, fmt.Sprintf("a.entity_type = ANY($%d)", next()))
		args = append(args, pq.Array(filters.EntityTypes))
	}
	if filters.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf("a.created_at >= $%d", next()))
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf("a.created_at <= $%d", next()))
		args = append(args, *filters.EndDate)
	}
	if filters.Search != "" {
		n := next()
		clauses = append(clauses, fmt.Sprintf(
			"(a.entity_type ILIKE $%d OR a.entity_id ILIKE $%d OR a.changes::text ILIKE $%d)", n, n, n))
		args = append(args, "%"+filters.Search+"%")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var changesJSON []byte

	err := row.Scan(
		&log.ID,
		&log.UserID,
		&log.Action,
		&log.EntityType,
		&log.EntityID,
		&changesJSON,
		&log.IPAddress,
		&log.UserAgent,
		&log.CreatedAt,
		&log.UserName,
		&log.UserEmail,
		&log.UserRole,
	)
	if err != nil {
		return nil, err
	}

	log.Changes, err = models.ParseChangeSet(changesJSON)
	if err != nil {
		return nil, err
	}

	return log, nil
}
