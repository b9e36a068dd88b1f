// inventory_repository.go implements InventoryRepository, providing database queries for
// inventory items. The *Tx variants exist for the revert engine, which must read and
// rewrite an item inside the same transaction that records the revert's audit entry.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medtrack/inventory-backend/internal/db/models"
)

// InventoryRepository handles inventory item database operations
type InventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository creates a new InventoryRepository
func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// BeginTx starts a database transaction on the underlying handle.
func (r *InventoryRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

const itemColumns = `id, sku, name, category, quantity, unit, location, expires_at, created_at, updated_at`

func scanItem(row rowScanner) (*models.InventoryItem, error) {
	item := &models.InventoryItem{}
	err := row.Scan(
		&item.ID,
		&item.SKU,
		&item.Name,
		&item.Category,
		&item.Quantity,
		&item.Unit,
		&item.Location,
		&item.ExpiresAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItem inserts a new inventory item.
func (r *InventoryRepository) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, sku, name, category, quantity, unit, location, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.SKU, item.Name, item.Category, item.Quantity, item.Unit,
		item.Location, item.ExpiresAt, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// GetItem retrieves an inventory item by ID. Returns (nil, nil) when no item exists.
func (r *InventoryRepository) GetItem(ctx context.Context, itemID string) (*models.InventoryItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetItemTx retrieves an inventory item by ID inside tx, locking the row for
// the remainder of the transaction. Returns (nil, nil) when no item exists.
func (r *InventoryRepository) GetItemTx(ctx context.Context, tx *sql.Tx, itemID string) (*models.InventoryItem, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems lists inventory items with optional free-text search over SKU,
// name, and category.
func (r *InventoryRepository) ListItems(ctx context.Context, search string, limit, offset int) ([]*models.InventoryItem, int, error) {
	where := ""
	args := make([]interface{}, 0)
	if search != "" {
		where = ` WHERE sku ILIKE $1 OR name ILIKE $1 OR category ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM inventory_items%s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		itemColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*models.InventoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}

	return items, total, rows.Err()
}

const updateItemQuery = `
	UPDATE inventory_items
	SET sku = $2, name = $3, category = $4, quantity = $5, unit = $6, location = $7,
	    expires_at = $8, updated_at = $9
	WHERE id = $1
`

// UpdateItem rewrites all mutable fields of an item. Returns sql.ErrNoRows if
// the item does not exist.
func (r *InventoryRepository) UpdateItem(ctx context.Context, item *models.InventoryItem) error {
	item.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, updateItemQuery,
		item.ID, item.SKU, item.Name, item.Category, item.Quantity, item.Unit,
		item.Location, item.ExpiresAt, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateItemTx rewrites all mutable fields of an item inside tx. The revert
// engine uses this to restore a prior snapshot.
func (r *InventoryRepository) UpdateItemTx(ctx context.Context, tx *sql.Tx, item *models.InventoryItem) error {
	item.UpdatedAt = time.Now()
	result, err := tx.ExecContext(ctx, updateItemQuery,
		item.ID, item.SKU, item.Name, item.Category, item.Quantity, item.Unit,
		item.Location, item.ExpiresAt, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteItem removes an item. Returns sql.ErrNoRows if the item does not exist.
func (r *InventoryRepository) DeleteItem(ctx context.Context, itemID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, itemID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
