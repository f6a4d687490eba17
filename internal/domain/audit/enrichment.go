// Package audit provides audit field enrichment and the fire-and-forget
// audit trail contract used by domain services.
package audit

import (
	"context"

	appctx "inventario/internal/core/context"
)

// EnrichCreatedByDirect sets creator id and display name from the request user.
// If no user is in context, this is a no-op.
func EnrichCreatedByDirect(ctx context.Context, createdBy, createdByName *string) {
	user := appctx.GetUser(ctx)
	if user == nil || user.UserID == "" {
		return
	}
	if createdBy != nil {
		*createdBy = user.UserID
	}
	if createdByName != nil {
		*createdByName = appctx.GetUserName(ctx)
	}
}
