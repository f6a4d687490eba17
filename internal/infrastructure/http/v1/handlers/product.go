package handlers

import (
	"github.com/gin-gonic/gin"

	"inventario/internal/domain/catalogs/product"
	"inventario/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves read-only catalog lookups for the count screens.
type ProductHandler struct {
	*BaseHandler
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, service: service}
}

// List searches products.
// GET /products
func (h *ProductHandler) List(c *gin.Context) {
	var q dto.ListProductsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.ProductResponse, len(result.Items))
	for i, p := range result.Items {
		items[i] = dto.FromProduct(p)
	}
	h.OK(c, dto.NewListResponse(items, q.PaginationRequest, result.TotalCount))
}

// Get returns one product.
// GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduct(p))
}
