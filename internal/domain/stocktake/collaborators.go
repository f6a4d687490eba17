package stocktake

import (
	"context"

	"inventario/internal/core/id"
	"inventario/internal/domain/catalogs/product"
)

// ProductCatalog reads the catalog a session snapshots.
type ProductCatalog interface {
	ListForCount(ctx context.Context, warehouseID *id.ID) ([]product.Product, error)
}

// StockMutator commits a signed delta into live stock and returns the new
// quantity.
type StockMutator interface {
	AdjustQuantity(ctx context.Context, productID id.ID, delta int64, ref product.MovementRef) (int64, error)
}

// Locker serializes work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LocalLocker runs fn directly. Used when no shared lock backend is configured.
type LocalLocker struct{}

// WithLock implements Locker.
func (LocalLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AdjustmentLockKey is the lock key guarding ApplyAdjustments for a session.
func AdjustmentLockKey(sessionID id.ID) string {
	return "stocktake:adjust:" + sessionID.String()
}
