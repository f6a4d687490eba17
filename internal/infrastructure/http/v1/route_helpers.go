package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inventario/internal/infrastructure/http/v1/handlers"
	"inventario/internal/infrastructure/http/v1/middleware"
)

// route binds a handler to a method and path behind a permission check.
type route struct {
	method     string
	path       string
	permission string
	handler    gin.HandlerFunc
}

// registerRoutes wires every route into group.
func registerRoutes(group *gin.RouterGroup, routes []route) {
	for _, r := range routes {
		group.Handle(r.method, r.path, middleware.RequirePermission(r.permission), r.handler)
	}
}

// stocktakeRoutes lists the count session endpoints.
func stocktakeRoutes(h *handlers.StocktakeHandler) []route {
	return []route{
		{http.MethodPost, "", middleware.PermStocktakeCreate, h.Create},
		{http.MethodGet, "", middleware.PermStocktakeRead, h.List},
		{http.MethodGet, "/:id", middleware.PermStocktakeRead, h.Get},
		{http.MethodDelete, "/:id", middleware.PermStocktakeDelete, h.Delete},
		{http.MethodGet, "/:id/summary", middleware.PermStocktakeRead, h.Summary},
		{http.MethodGet, "/:id/export", middleware.PermStocktakeRead, h.Export},
		{http.MethodGet, "/:id/details", middleware.PermStocktakeRead, h.ListDetails},
		{http.MethodPut, "/:id/details/:detailId", middleware.PermStocktakeCount, h.UpdateDetail},
		{http.MethodPost, "/:id/cancel", middleware.PermStocktakeUpdate, h.Cancel},
		{http.MethodGet, "/:id/can-finalize", middleware.PermStocktakeRead, h.CanFinalize},
		{http.MethodPost, "/:id/finalize", middleware.PermStocktakeFinalize, h.Finalize},
		{http.MethodPost, "/:id/adjustments", middleware.PermStocktakeAdjust, h.ApplyAdjustments},
		{http.MethodGet, "/:id/movements", middleware.PermStocktakeRead, h.Movements},
		{http.MethodGet, "/:id/history", middleware.PermStocktakeRead, h.History},
		{http.MethodGet, "/:id/details/:detailId/history", middleware.PermStocktakeRead, h.DetailHistory},
	}
}

// productRoutes lists the catalog lookup endpoints.
func productRoutes(h *handlers.ProductHandler) []route {
	return []route{
		{http.MethodGet, "", middleware.PermProductRead, h.List},
		{http.MethodGet, "/:id", middleware.PermProductRead, h.Get},
	}
}
