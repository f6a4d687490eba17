package dto

import (
	"time"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain/stocktake"
)

// --- Request DTOs ---

// CreateStocktakeRequest starts a count. Field limits are enforced by the
// domain so violations carry the offending field.
type CreateStocktakeRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	WarehouseID *string `json:"warehouseId,omitempty"`
}

// ToInput converts the request to a domain input.
func (r *CreateStocktakeRequest) ToInput() (stocktake.CreateInput, error) {
	in := stocktake.CreateInput{Name: r.Name, Description: r.Description}
	if r.WarehouseID != nil {
		wh, err := id.ParseOptional(*r.WarehouseID)
		if err != nil {
			return in, apperror.NewFieldValidation("warehouseId", "warehouse id is invalid")
		}
		in.WarehouseID = wh
	}
	return in, nil
}

// UpdateCountRequest captures a counted quantity. countedQuantity must be
// present; null clears the capture.
type UpdateCountRequest struct {
	CountedQuantity Optional[int64] `json:"countedQuantity"`
	Notes           *string         `json:"notes"`
}

// ToInput converts the request to a domain input.
func (r *UpdateCountRequest) ToInput() (stocktake.UpdateCountInput, error) {
	if !r.CountedQuantity.Set {
		return stocktake.UpdateCountInput{}, apperror.NewFieldValidation("countedQuantity",
			"countedQuantity is required, send null to clear the count")
	}
	return stocktake.UpdateCountInput{CountedQuantity: r.CountedQuantity.Value, Notes: r.Notes}, nil
}

// ListStocktakesQuery holds list query parameters.
type ListStocktakesQuery struct {
	PaginationRequest
	Search           string `form:"search"`
	IncludeCancelled bool   `form:"includeCancelled"`
	Status           string `form:"status"`
	WarehouseID      string `form:"warehouseId"`
}

// ToFilter converts the query to a domain filter.
func (q *ListStocktakesQuery) ToFilter() (stocktake.ListFilter, error) {
	q.Defaults()
	filter := stocktake.ListFilter{
		Search:           q.Search,
		IncludeCancelled: q.IncludeCancelled,
		Limit:            q.PageSize,
		Offset:           q.Offset(),
	}
	if q.Status != "" {
		s := stocktake.Status(q.Status)
		filter.Status = &s
	}
	wh, err := id.ParseOptional(q.WarehouseID)
	if err != nil {
		return filter, apperror.NewFieldValidation("warehouseId", "warehouse id is invalid")
	}
	filter.WarehouseID = wh
	return filter, nil
}

// ListDetailsQuery holds detail list query parameters.
type ListDetailsQuery struct {
	PaginationRequest
	Pending *bool `form:"pending"`
}

// ToFilter converts the query to a domain filter for sessionID.
func (q *ListDetailsQuery) ToFilter(sessionID id.ID) stocktake.DetailFilter {
	q.Defaults()
	return stocktake.DetailFilter{
		SessionID: sessionID,
		Pending:   q.Pending,
		Limit:     q.PageSize,
		Offset:    q.Offset(),
	}
}

// HistoryQuery bounds an audit trail listing.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// --- Response DTOs ---

// StocktakeResponse is the API view of a session.
type StocktakeResponse struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	Name             string     `json:"name"`
	Description      *string    `json:"description"`
	WarehouseID      *string    `json:"warehouseId"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	FinalizedAt      *time.Time `json:"finalizedAt"`
	CancelledAt      *time.Time `json:"cancelledAt"`
	TotalProducts    int        `json:"totalProducts"`
	TotalAdjustments int        `json:"totalAdjustments"`
	CreatedBy        string     `json:"createdBy"`
	CreatedByName    string     `json:"createdByName"`
	Version          int        `json:"version"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// FromSession maps a session to its response.
func FromSession(s *stocktake.Session) StocktakeResponse {
	resp := StocktakeResponse{
		ID:               s.ID.String(),
		Number:           s.Number,
		Name:             s.Name,
		Description:      s.Description,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt,
		FinalizedAt:      s.FinalizedAt,
		CancelledAt:      s.CancelledAt,
		TotalProducts:    s.TotalProducts,
		TotalAdjustments: s.TotalAdjustments,
		CreatedBy:        s.CreatedBy,
		CreatedByName:    s.CreatedByName,
		Version:          s.Version,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.WarehouseID != nil {
		wh := s.WarehouseID.String()
		resp.WarehouseID = &wh
	}
	return resp
}

// DetailResponse is the API view of a count line.
type DetailResponse struct {
	ID              string      `json:"id"`
	LineNo          int         `json:"lineNo"`
	ProductID       string      `json:"productId"`
	ProductCode     string      `json:"productCode"`
	ProductName     string      `json:"productName"`
	SystemQuantity  int64       `json:"systemQuantity"`
	CountedQuantity *int64      `json:"countedQuantity"`
	Variance        *int64      `json:"variance"`
	Result          string      `json:"result"`
	Notes           *string     `json:"notes"`
	UnitCost        types.Money `json:"unitCost"`
	Adjusted        bool        `json:"adjusted"`
	AdjustedAt      *time.Time  `json:"adjustedAt"`
	CountedAt       *time.Time  `json:"countedAt"`
	CountedBy       *string     `json:"countedBy"`
}

// FromDetailView maps a count line to its response.
func FromDetailView(v *stocktake.DetailView) DetailResponse {
	return DetailResponse{
		ID:              v.ID.String(),
		LineNo:          v.LineNo,
		ProductID:       v.ProductID.String(),
		ProductCode:     v.ProductCode,
		ProductName:     v.ProductName,
		SystemQuantity:  v.SystemQuantity,
		CountedQuantity: v.CountedQuantity,
		Variance:        v.Variance,
		Result:          string(v.Kind()),
		Notes:           v.Notes,
		UnitCost:        v.UnitCost.ToMoney(),
		Adjusted:        v.Adjusted,
		AdjustedAt:      v.AdjustedAt,
		CountedAt:       v.CountedAt,
		CountedBy:       v.CountedBy,
	}
}

// CanFinalizeResponse answers the finalize precondition check.
type CanFinalizeResponse struct {
	CanFinalize bool `json:"canFinalize"`
}
