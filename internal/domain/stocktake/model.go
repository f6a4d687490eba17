// Package stocktake implements physical inventory counts: a session snapshots
// system quantities, operators capture counted quantities per product, the
// session is finalized once every line is counted, and variances are then
// applied to live stock.
package stocktake

import (
	"strings"
	"time"
	"unicode/utf8"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain/catalogs/product"
)

// EntityName is used in errors and audit records.
const EntityName = "stocktake"

// DetailEntityName is used in errors for count lines.
const DetailEntityName = "stocktake_detail"

// Field limits.
const (
	NameMinLen        = 3
	NameMaxLen        = 200
	DescriptionMaxLen = 500
	NotesMaxLen       = 500
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFinalized  Status = "finalized"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusFinalized, StatusCancelled:
		return true
	}
	return false
}

// Session is one physical count exercise over a product scope.
type Session struct {
	ID          id.ID   `db:"id" json:"id"`
	Number      string  `db:"number" json:"number"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
	WarehouseID *id.ID  `db:"warehouse_id" json:"warehouseId,omitempty"`
	Status      Status  `db:"status" json:"status"`

	StartedAt   time.Time  `db:"started_at" json:"startedAt"`
	FinalizedAt *time.Time `db:"finalized_at" json:"finalizedAt,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`

	// TotalProducts is fixed when the session is created.
	TotalProducts int `db:"total_products" json:"totalProducts"`
	// TotalAdjustments is derived on read from adjusted details.
	TotalAdjustments int `db:"total_adjustments" json:"totalAdjustments"`

	CreatedBy     string    `db:"created_by" json:"createdBy"`
	CreatedByName string    `db:"created_by_name" json:"createdByName"`
	Version       int       `db:"version" json:"version"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Detail is the per-product count line of a session.
type Detail struct {
	ID        id.ID `db:"id" json:"id"`
	SessionID id.ID `db:"session_id" json:"sessionId"`
	LineNo    int   `db:"line_no" json:"lineNo"`
	ProductID id.ID `db:"product_id" json:"productId"`

	SystemQuantity  int64            `db:"system_quantity" json:"systemQuantity"`
	CountedQuantity *int64           `db:"counted_quantity" json:"countedQuantity"`
	Variance        *int64           `db:"variance" json:"variance"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	UnitCost        types.MinorUnits `db:"unit_cost" json:"unitCost"`

	Adjusted   bool       `db:"adjusted" json:"adjusted"`
	AdjustedAt *time.Time `db:"adjusted_at" json:"adjustedAt,omitempty"`

	CountedAt *time.Time `db:"counted_at" json:"countedAt,omitempty"`
	CountedBy *string    `db:"counted_by" json:"countedBy,omitempty"`
}

// DetailView is a Detail joined with product descriptive fields.
type DetailView struct {
	Detail
	ProductCode string `db:"product_code" json:"productCode"`
	ProductName string `db:"product_name" json:"productName"`
}

// CreateInput holds the parameters of a new session.
type CreateInput struct {
	Name        string
	Description *string
	WarehouseID *id.ID
}

// Normalize trims text fields; an empty description becomes nil.
func (in *CreateInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			in.Description = nil
		} else {
			in.Description = &d
		}
	}
}

// Validate checks field limits.
func (in CreateInput) Validate() error {
	n := utf8.RuneCountInString(in.Name)
	if n < NameMinLen || n > NameMaxLen {
		return apperror.NewFieldValidation("name", "name must be between 3 and 200 characters").
			WithDetail("min", NameMinLen).
			WithDetail("max", NameMaxLen)
	}
	if in.Description != nil && utf8.RuneCountInString(*in.Description) > DescriptionMaxLen {
		return apperror.NewFieldValidation("description", "description must be at most 500 characters").
			WithDetail("max", DescriptionMaxLen)
	}
	if in.WarehouseID != nil && id.IsNil(*in.WarehouseID) {
		return apperror.NewFieldValidation("warehouseId", "warehouse id is invalid")
	}
	return nil
}

// UpdateCountInput carries a capture. A nil CountedQuantity un-captures the
// line; a nil Notes leaves notes untouched and an empty one clears them.
type UpdateCountInput struct {
	CountedQuantity *int64
	Notes           *string
}

// Validate checks the counted quantity and notes length.
func (in UpdateCountInput) Validate() error {
	if in.CountedQuantity != nil && *in.CountedQuantity < 0 {
		return apperror.NewFieldValidation("countedQuantity", "counted quantity must be a non-negative integer")
	}
	if in.Notes != nil && utf8.RuneCountInString(*in.Notes) > NotesMaxLen {
		return apperror.NewFieldValidation("notes", "notes must be at most 500 characters").
			WithDetail("max", NotesMaxLen)
	}
	return nil
}

// NewSession creates an in-progress session.
func NewSession(in CreateInput, now time.Time) *Session {
	return &Session{
		ID:          id.New(),
		Name:        in.Name,
		Description: in.Description,
		WarehouseID: in.WarehouseID,
		Status:      StatusInProgress,
		StartedAt:   now,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Snapshot builds one pending detail per product, freezing the current
// quantity and cost. It also fixes TotalProducts.
func (s *Session) Snapshot(products []product.Product) []Detail {
	details := make([]Detail, 0, len(products))
	for i, p := range products {
		details = append(details, Detail{
			ID:             id.New(),
			SessionID:      s.ID,
			LineNo:         i + 1,
			ProductID:      p.ID,
			SystemQuantity: p.Quantity,
			UnitCost:       p.Cost,
		})
	}
	s.TotalProducts = len(details)
	return details
}

// EnsureInProgress fails with an invalid-state error unless the session is open.
func (s *Session) EnsureInProgress(operation string) error {
	if s.Status != StatusInProgress {
		return apperror.NewInvalidState(EntityName, string(s.Status), operation)
	}
	return nil
}

// CanFinalize reports whether the session is open and fully captured.
// An empty session never qualifies.
func (s *Session) CanFinalize(total, captured int) bool {
	return s.Status == StatusInProgress && total > 0 && captured == total
}

// Finalize freezes the count. State is checked first, then emptiness, then
// capture completeness.
func (s *Session) Finalize(total, captured int, now time.Time) error {
	if err := s.EnsureInProgress("finalize"); err != nil {
		return err
	}
	if total == 0 {
		return apperror.NewBusinessRule(apperror.CodeEmptySession, "session has no count lines").
			WithDetail("total", 0)
	}
	if pending := total - captured; pending > 0 {
		return apperror.NewIncompleteCapture(pending, total)
	}

	s.Status = StatusFinalized
	s.FinalizedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel abandons an open session.
func (s *Session) Cancel(now time.Time) error {
	if err := s.EnsureInProgress("cancel"); err != nil {
		return err
	}
	s.Status = StatusCancelled
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// IsCaptured reports whether the line has a counted quantity.
func (d *Detail) IsCaptured() bool {
	return d.CountedQuantity != nil
}

// Kind classifies the line by the sign of its variance.
func (d *Detail) Kind() VarianceKind {
	return ClassifyVariance(d.Variance)
}

// NeedsAdjustment reports whether the line still has to be applied to stock.
func (d *Detail) NeedsAdjustment() bool {
	return d.Variance != nil && *d.Variance != 0 && !d.Adjusted
}

// SetCount applies a capture and recomputes variance. CountedAt and CountedBy
// move only when the counted value changes, so repeating a capture leaves the
// line byte-for-byte identical. It reports whether anything changed.
func (d *Detail) SetCount(in UpdateCountInput, countedBy string, now time.Time) bool {
	changed := false

	if !sameQuantity(d.CountedQuantity, in.CountedQuantity) {
		changed = true
		if in.CountedQuantity == nil {
			d.CountedQuantity = nil
			d.CountedAt = nil
			d.CountedBy = nil
		} else {
			q := *in.CountedQuantity
			d.CountedQuantity = &q
			d.CountedAt = &now
			if countedBy != "" {
				by := countedBy
				d.CountedBy = &by
			} else {
				d.CountedBy = nil
			}
		}
	}
	d.Variance = ComputeVariance(d.CountedQuantity, d.SystemQuantity)

	if in.Notes != nil {
		var next *string
		if n := strings.TrimSpace(*in.Notes); n != "" {
			next = &n
		}
		if !sameText(d.Notes, next) {
			d.Notes = next
			changed = true
		}
	}

	return changed
}

// ValuedVariance is the variance priced at the snapshot unit cost.
func (d *Detail) ValuedVariance() types.Money {
	if d.Variance == nil {
		return types.Money{}
	}
	return d.UnitCost.Mul(*d.Variance)
}

func sameQuantity(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
