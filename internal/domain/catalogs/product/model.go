// Package product provides the product catalog as seen by stock counting:
// live quantity, cost and the movement log of quantity changes.
package product

import (
	"time"

	"inventario/internal/core/id"
	"inventario/internal/core/types"
)

// EntityName is used in errors.
const EntityName = "product"

// Product is a stocked item with its live quantity.
type Product struct {
	ID          id.ID            `db:"id" json:"id"`
	Code        string           `db:"code" json:"code"`
	Name        string           `db:"name" json:"name"`
	WarehouseID *id.ID           `db:"warehouse_id" json:"warehouseId,omitempty"`
	Quantity    int64            `db:"quantity" json:"quantity"`
	Cost        types.MinorUnits `db:"cost" json:"cost"`
	Active      bool             `db:"active" json:"active"`
	Version     int              `db:"version" json:"version"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// MovementRef identifies the document that caused a quantity change.
type MovementRef struct {
	RecorderType string
	RecorderID   id.ID
	LineNo       int
}

// Movement is one row of the stock movement log.
type Movement struct {
	ID             id.ID     `db:"id" json:"id"`
	ProductID      id.ID     `db:"product_id" json:"productId"`
	Delta          int64     `db:"delta" json:"delta"`
	QuantityBefore int64     `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  int64     `db:"quantity_after" json:"quantityAfter"`
	RecorderType   string    `db:"recorder_type" json:"recorderType"`
	RecorderID     id.ID     `db:"recorder_id" json:"recorderId"`
	LineNo         int       `db:"line_no" json:"lineNo"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Search      string
	WarehouseID *id.ID
	ActiveOnly  bool
	Limit       int
	Offset      int
}
