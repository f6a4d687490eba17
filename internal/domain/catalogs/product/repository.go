package product

import (
	"context"

	"inventario/internal/core/id"
	"inventario/internal/domain"
)

// Repository defines data access for products and their movement log.
type Repository interface {
	GetByID(ctx context.Context, id id.ID) (*Product, error)

	// GetForUpdate locks the product row for the current transaction.
	GetForUpdate(ctx context.Context, id id.ID) (*Product, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Product], error)

	// ListForCount returns active products, optionally scoped to a warehouse,
	// in code order.
	ListForCount(ctx context.Context, warehouseID *id.ID) ([]Product, error)

	// UpdateQuantity sets quantity with optimistic locking on version.
	UpdateQuantity(ctx context.Context, productID id.ID, quantity int64, expectedVersion int) error

	CreateMovement(ctx context.Context, m *Movement) error

	ListMovements(ctx context.Context, recorderID id.ID) ([]Movement, error)
}
