package product

import (
	"context"
	"fmt"
	"time"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/tx"
	"inventario/internal/domain"
	"inventario/pkg/logger"
)

// Service provides catalog reads and live-stock mutation.
type Service struct {
	repo      Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a new product service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetByID retrieves a product.
func (s *Service) GetByID(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// List retrieves products with filtering and pagination.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Product], error) {
	page := domain.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, filter)
}

// ListForCount returns the active catalog a stock count snapshots.
func (s *Service) ListForCount(ctx context.Context, warehouseID *id.ID) ([]Product, error) {
	products, err := s.repo.ListForCount(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list products for count: %w", err)
	}
	return products, nil
}

// AdjustQuantity adds delta (which may be negative) to the product's live
// quantity and writes a movement row. Runs in the caller's transaction when
// there is one. A result below zero is rejected.
func (s *Service) AdjustQuantity(ctx context.Context, productID id.ID, delta int64, ref MovementRef) (int64, error) {
	if delta == 0 {
		return 0, apperror.NewValidation("delta must not be zero").WithDetail("field", "delta")
	}

	var after int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		before := p.Quantity
		after = before + delta
		if after < 0 {
			return apperror.NewInsufficientStock(productID.String(), -delta, before)
		}

		if err := s.repo.UpdateQuantity(ctx, productID, after, p.Version); err != nil {
			return err
		}

		return s.repo.CreateMovement(ctx, &Movement{
			ID:             id.New(),
			ProductID:      productID,
			Delta:          delta,
			QuantityBefore: before,
			QuantityAfter:  after,
			RecorderType:   ref.RecorderType,
			RecorderID:     ref.RecorderID,
			LineNo:         ref.LineNo,
			CreatedAt:      s.now(),
		})
	})
	if err != nil {
		return 0, err
	}

	logger.Debug(ctx, "product quantity adjusted",
		"product_id", productID,
		"delta", delta,
		"quantity", after,
		"recorder_id", ref.RecorderID,
	)
	return after, nil
}

// Movements lists movement rows written for a recorder document.
func (s *Service) Movements(ctx context.Context, recorderID id.ID) ([]Movement, error) {
	return s.repo.ListMovements(ctx, recorderID)
}
