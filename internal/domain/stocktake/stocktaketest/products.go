package stocktaketest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain"
	"inventario/internal/domain/catalogs/product"
)

// ProductRepo is an in-memory product.Repository.
type ProductRepo struct {
	db *DB
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a product repository over db.
func NewProductRepo(db *DB) *ProductRepo {
	return &ProductRepo{db: db}
}

// Seed inserts an active product and returns it.
func (r *ProductRepo) Seed(code string, quantity int64, cost types.MinorUnits, warehouseID *id.ID) product.Product {
	now := time.Now().UTC()
	p := product.Product{
		ID:          id.New(),
		Code:        code,
		Name:        "Product " + code,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		Cost:        cost,
		Active:      true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.db.mu.Lock()
	r.db.products[p.ID] = p
	r.db.mu.Unlock()
	return p
}

// Deactivate flags a product inactive.
func (r *ProductRepo) Deactivate(productID id.ID) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.products[productID]
	p.Active = false
	r.db.products[productID] = p
}

// SetQuantity overwrites live stock, simulating a movement elsewhere.
func (r *ProductRepo) SetQuantity(productID id.ID, qty int64) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := r.db.products[productID]
	p.Quantity = qty
	p.Version++
	r.db.products[productID] = p
}

// Quantity returns live stock of a product.
func (r *ProductRepo) Quantity(productID id.ID) int64 {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.products[productID].Quantity
}

func (r *ProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("GetProduct"); err != nil {
		return nil, err
	}
	p, ok := r.db.products[productID]
	if !ok {
		return nil, apperror.NewNotFound(product.EntityName, productID)
	}
	return &p, nil
}

func (r *ProductRepo) GetForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.GetByID(ctx, productID)
}

func (r *ProductRepo) List(_ context.Context, filter product.ListFilter) (domain.ListResult[*product.Product], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var all []*product.Product
	for _, p := range r.db.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.WarehouseID != nil && (p.WarehouseID == nil || *p.WarehouseID != *filter.WarehouseID) {
			continue
		}
		if filter.Search != "" {
			q := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.Code), q) && !strings.Contains(strings.ToLower(p.Name), q) {
				continue
			}
		}
		all = append(all, &p)
	}
	slices.SortFunc(all, func(a, b *product.Product) int { return cmp.Compare(a.Code, b.Code) })

	return domain.ListResult[*product.Product]{
		Items:      paginate(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *ProductRepo) ListForCount(_ context.Context, warehouseID *id.ID) ([]product.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("ListForCount"); err != nil {
		return nil, err
	}

	var out []product.Product
	for _, p := range r.db.products {
		if !p.Active {
			continue
		}
		if warehouseID != nil && (p.WarehouseID == nil || *p.WarehouseID != *warehouseID) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.Code, b.Code) })
	return out, nil
}

func (r *ProductRepo) UpdateQuantity(_ context.Context, productID id.ID, quantity int64, expectedVersion int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("UpdateQuantity"); err != nil {
		return err
	}

	p, ok := r.db.products[productID]
	if !ok {
		return apperror.NewNotFound(product.EntityName, productID)
	}
	if p.Version != expectedVersion {
		return apperror.NewConcurrentModification(product.EntityName, productID)
	}
	p.Quantity = quantity
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	r.db.products[productID] = p
	return nil
}

func (r *ProductRepo) CreateMovement(_ context.Context, m *product.Movement) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("CreateMovement"); err != nil {
		return err
	}
	r.db.movements = append(r.db.movements, *m)
	return nil
}

func (r *ProductRepo) ListMovements(_ context.Context, recorderID id.ID) ([]product.Movement, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []product.Movement
	for _, m := range r.db.movements {
		if m.RecorderID == recorderID {
			out = append(out, m)
		}
	}
	return out, nil
}

// FailingMutator wraps a StockMutator and fails for selected products.
type FailingMutator struct {
	Next interface {
		AdjustQuantity(ctx context.Context, productID id.ID, delta int64, ref product.MovementRef) (int64, error)
	}
	FailFor map[id.ID]error
	Calls   int
}

// AdjustQuantity implements stocktake.StockMutator.
func (m *FailingMutator) AdjustQuantity(ctx context.Context, productID id.ID, delta int64, ref product.MovementRef) (int64, error) {
	m.Calls++
	if err, ok := m.FailFor[productID]; ok {
		return 0, err
	}
	if m.Next == nil {
		return 0, fmt.Errorf("no stock mutator configured")
	}
	return m.Next.AdjustQuantity(ctx, productID, delta, ref)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
