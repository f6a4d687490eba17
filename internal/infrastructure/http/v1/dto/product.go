package dto

import (
	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain/catalogs/product"
)

// ListProductsQuery holds product lookup parameters.
type ListProductsQuery struct {
	PaginationRequest
	Search      string `form:"search"`
	WarehouseID string `form:"warehouseId"`
	ActiveOnly  bool   `form:"activeOnly"`
}

// ToFilter converts the query to a domain filter.
func (q *ListProductsQuery) ToFilter() (product.ListFilter, error) {
	q.Defaults()
	wh, err := id.ParseOptional(q.WarehouseID)
	if err != nil {
		return product.ListFilter{}, apperror.NewFieldValidation("warehouseId", "warehouse id is invalid")
	}
	return product.ListFilter{
		Search:      q.Search,
		WarehouseID: wh,
		ActiveOnly:  q.ActiveOnly,
		Limit:       q.PageSize,
		Offset:      q.Offset(),
	}, nil
}

// ProductResponse is the API view of a product.
type ProductResponse struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	WarehouseID *string     `json:"warehouseId"`
	Quantity    int64       `json:"quantity"`
	Cost        types.Money `json:"cost"`
	Active      bool        `json:"active"`
}

// FromProduct maps a product to its response.
func FromProduct(p *product.Product) ProductResponse {
	resp := ProductResponse{
		ID:       p.ID.String(),
		Code:     p.Code,
		Name:     p.Name,
		Quantity: p.Quantity,
		Cost:     p.Cost.ToMoney(),
		Active:   p.Active,
	}
	if p.WarehouseID != nil {
		wh := p.WarehouseID.String()
		resp.WarehouseID = &wh
	}
	return resp
}

// MovementResponse is one stock movement caused by a document.
type MovementResponse struct {
	ProductID      string `json:"productId"`
	Delta          int64  `json:"delta"`
	QuantityBefore int64  `json:"quantityBefore"`
	QuantityAfter  int64  `json:"quantityAfter"`
	LineNo         int    `json:"lineNo"`
}

// FromMovement maps a movement to its response.
func FromMovement(m product.Movement) MovementResponse {
	return MovementResponse{
		ProductID:      m.ProductID.String(),
		Delta:          m.Delta,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		LineNo:         m.LineNo,
	}
}
