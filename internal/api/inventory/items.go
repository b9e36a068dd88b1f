// Package inventory implements the inventory item HTTP handlers. Every
// mutation is recorded in the audit trail with before/after snapshots of the
// item, which is what lets UPDATE entries be reverted later.
package inventory

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
	auditcore "github.com/medtrack/inventory-backend/internal/audit"
	"github.com/medtrack/inventory-backend/internal/db/models"
	"github.com/medtrack/inventory-backend/internal/db/repositories"
	"github.com/medtrack/inventory-backend/internal/middleware"
)

// Handlers serves the inventory item API.
type Handlers struct {
	items    *repositories.InventoryRepository
	recorder *auditcore.Recorder
}

// NewHandlers creates the inventory API handlers.
func NewHandlers(items *repositories.InventoryRepository, recorder *auditcore.Recorder) *Handlers {
	return &Handlers{items: items, recorder: recorder}
}

type itemRequest struct {
	SKU       string     `json:"sku" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	Category  string     `json:"category" binding:"required"`
	Quantity  int        `json:"quantity"`
	Unit      string     `json:"unit" binding:"required"`
	Location  string     `json:"location"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (req itemRequest) validate() string {
	if req.Quantity < 0 {
		return "quantity must not be negative"
	}
	return ""
}

func snapshot(item *models.InventoryItem) json.RawMessage {
	if item == nil {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil
	}
	return data
}

// record writes the audit entry for a mutation, attributed to the caller.
func (h *Handlers) record(c *gin.Context, action, itemID string, before, after json.RawMessage) {
	h.recorder.Record(c.Request.Context(), auditcore.Entry{
		Actor:      middleware.CurrentUser(c),
		Action:     action,
		EntityType: "InventoryItem",
		EntityID:   itemID,
		Changes:    models.ChangeSet{Before: before, After: after},
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

// ListItemsHandler lists inventory items with optional search.
// GET /api/inventory/items
func (h *Handlers) ListItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if page < 1 {
			page = 1
		}
		if limit < 1 || limit > 200 {
			limit = 50
		}

		items, total, err := h.items.ListItems(c.Request.Context(), c.Query("search"), limit, (page-1)*limit)
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to list inventory items")
			return
		}

		c.JSON(http.StatusOK, apierror.OK(gin.H{
			"items": items,
			"pagination": gin.H{
				"page":       page,
				"limit":      limit,
				"total":      total,
				"totalPages": (total + limit - 1) / limit,
			},
		}))
	}
}

// GetItemHandler returns a single inventory item.
// GET /api/inventory/items/:id
func (h *Handlers) GetItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to load inventory item")
			return
		}
		if item == nil {
			apierror.Respond(c, http.StatusNotFound, apierror.CodeNotFound,
				"Inventory item not found")
			return
		}
		c.JSON(http.StatusOK, apierror.OK(item))
	}
}

// CreateItemHandler creates an inventory item and records a CREATE entry with
// the new state as the after snapshot.
// POST /api/inventory/items
func (h *Handlers) CreateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req itemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"Invalid item: "+err.Error())
			return
		}
		if msg := req.validate(); msg != "" {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation, msg)
			return
		}

		now := time.Now()
		item := &models.InventoryItem{
			ID:        uuid.New().String(),
			SKU:       req.SKU,
			Name:      req.Name,
			Category:  req.Category,
			Quantity:  req.Quantity,
			Unit:      req.Unit,
			Location:  req.Location,
			ExpiresAt: req.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := h.items.CreateItem(c.Request.Context(), item); err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to create inventory item")
			return
		}

		h.record(c, models.ActionCreate, item.ID, nil, snapshot(item))

		c.JSON(http.StatusCreated, apierror.OK(item))
	}
}

// UpdateItemHandler updates an inventory item and records an UPDATE entry
// with before and after snapshots.
// PUT /api/inventory/items/:id
func (h *Handlers) UpdateItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req itemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation,
				"Invalid item: "+err.Error())
			return
		}
		if msg := req.validate(); msg != "" {
			apierror.Respond(c, http.StatusBadRequest, apierror.CodeValidation, msg)
			return
		}

		current, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to load inventory item")
			return
		}
		if current == nil {
			apierror.Respond(c, http.StatusNotFound, apierror.CodeNotFound,
				"Inventory item not found")
			return
		}

		before := snapshot(current)

		updated := *current
		updated.SKU = req.SKU
		updated.Name = req.Name
		updated.Category = req.Category
		updated.Quantity = req.Quantity
		updated.Unit = req.Unit
		updated.Location = req.Location
		updated.ExpiresAt = req.ExpiresAt
		updated.UpdatedAt = time.Now()

		if err := h.items.UpdateItem(c.Request.Context(), &updated); err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to update inventory item")
			return
		}

		h.record(c, models.ActionUpdate, updated.ID, before, snapshot(&updated))

		c.JSON(http.StatusOK, apierror.OK(&updated))
	}
}

// DeleteItemHandler deletes an inventory item and records a DELETE entry
// preserving the last known state as the before snapshot.
// DELETE /api/inventory/items/:id
func (h *Handlers) DeleteItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to load inventory item")
			return
		}
		if current == nil {
			apierror.Respond(c, http.StatusNotFound, apierror.CodeNotFound,
				"Inventory item not found")
			return
		}

		if err := h.items.DeleteItem(c.Request.Context(), current.ID); err != nil {
			apierror.Respond(c, http.StatusInternalServerError, apierror.CodeDatabaseError,
				"Failed to delete inventory item")
			return
		}

		h.record(c, models.ActionDelete, current.ID, snapshot(current), nil)

		c.JSON(http.StatusOK, apierror.OK(gin.H{"message": "Item deleted"}))
	}
}
