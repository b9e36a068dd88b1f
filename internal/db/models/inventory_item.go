// inventory_item.go defines the InventoryItem model, the primary entity tracked by the
// audit trail. Every create/update/delete of an item produces an audit entry carrying
// a snapshot of these fields, and the revert engine writes snapshots back onto them.
package models

import "time"

// InventoryItem represents one stocked medical supply line.
type InventoryItem struct {
	ID        string     `json:"id"`
	SKU       string     `json:"sku"`
	Name      string     `json:"name"`
	Category  string     `json:"category"`
	Quantity  int        `json:"quantity"`
	Unit      string     `json:"unit"`     // "box", "vial", "unit", ...
	Location  string     `json:"location"` // storage location code
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
