// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"github.com/gin-gonic/gin"

	"inventario/internal/core/apperror"
	appctx "inventario/internal/core/context"
)

// Permissions guarded by the API.
const (
	PermStocktakeRead     = "stocktake:read"
	PermStocktakeCreate   = "stocktake:create"
	PermStocktakeUpdate   = "stocktake:update"
	PermStocktakeDelete   = "stocktake:delete"
	PermStocktakeCount    = "stocktake:count"
	PermStocktakeFinalize = "stocktake:finalize"
	PermStocktakeAdjust   = "stocktake:adjust"
	PermProductRead       = "product:read"
)

// RequirePermission middleware checks if user has required permission.
// Admins automatically have all permissions.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if appctx.HasPermission(c.Request.Context(), permission) {
			c.Next()
			return
		}

		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_permission", permission),
		)
		c.Abort()
	}
}
