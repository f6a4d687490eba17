package stocktake

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/domain/catalogs/product"
)

func TestCreateInput_Validate(t *testing.T) {
	long := strings.Repeat("x", 201)
	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"ok", CreateInput{Name: "Conteo anual"}, ""},
		{"too short", CreateInput{Name: "ab"}, "name"},
		{"too long", CreateInput{Name: long}, "name"},
		{"description too long", CreateInput{Name: "abc", Description: ptr(strings.Repeat("d", 501))}, "description"},
		{"nil warehouse id", CreateInput{Name: "abc", WarehouseID: &id.ID{}}, "warehouseId"},
		{"multibyte name counts runes", CreateInput{Name: "año"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func TestCreateInput_Normalize(t *testing.T) {
	in := CreateInput{Name: "  Bodega norte  ", Description: ptr("   ")}
	in.Normalize()

	assert.Equal(t, "Bodega norte", in.Name)
	assert.Nil(t, in.Description)
}

func TestUpdateCountInput_Validate(t *testing.T) {
	assert.NoError(t, UpdateCountInput{}.Validate())
	assert.NoError(t, UpdateCountInput{CountedQuantity: ptr[int64](0)}.Validate())

	err := UpdateCountInput{CountedQuantity: ptr[int64](-1)}.Validate()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	err = UpdateCountInput{Notes: ptr(strings.Repeat("n", 501))}.Validate()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSession_Snapshot(t *testing.T) {
	s := NewSession(CreateInput{Name: "Conteo"}, time.Now())
	products := []product.Product{
		{ID: id.New(), Quantity: 10, Cost: 250},
		{ID: id.New(), Quantity: 0, Cost: 100},
	}

	details := s.Snapshot(products)

	require.Len(t, details, 2)
	assert.Equal(t, 2, s.TotalProducts)
	for i, d := range details {
		assert.Equal(t, s.ID, d.SessionID)
		assert.Equal(t, i+1, d.LineNo)
		assert.Equal(t, products[i].ID, d.ProductID)
		assert.Equal(t, products[i].Quantity, d.SystemQuantity)
		assert.Equal(t, products[i].Cost, d.UnitCost)
		assert.Nil(t, d.CountedQuantity)
		assert.Nil(t, d.Variance)
		assert.False(t, d.Adjusted)
	}

	products[0].Quantity = 99
	assert.Equal(t, int64(10), details[0].SystemQuantity)
}

func TestSession_Finalize(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("complete", func(t *testing.T) {
		s := NewSession(CreateInput{Name: "abc"}, now)
		require.NoError(t, s.Finalize(3, 3, now))
		assert.Equal(t, StatusFinalized, s.Status)
		assert.Equal(t, &now, s.FinalizedAt)
	})

	t.Run("incomplete", func(t *testing.T) {
		s := NewSession(CreateInput{Name: "abc"}, now)
		err := s.Finalize(3, 2, now)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeIncompleteCapture, appErr.Code)
		assert.Equal(t, 1, appErr.Details["pending"])
		assert.Equal(t, StatusInProgress, s.Status)
		assert.Nil(t, s.FinalizedAt)
	})

	t.Run("empty", func(t *testing.T) {
		s := NewSession(CreateInput{Name: "abc"}, now)
		err := s.Finalize(0, 0, now)
		assert.True(t, apperror.HasCode(err, apperror.CodeEmptySession))
		assert.False(t, s.CanFinalize(0, 0))
	})

	t.Run("terminal", func(t *testing.T) {
		for _, st := range []Status{StatusFinalized, StatusCancelled} {
			s := NewSession(CreateInput{Name: "abc"}, now)
			s.Status = st
			assert.True(t, apperror.IsInvalidState(s.Finalize(1, 1, now)), st)
			assert.True(t, apperror.IsInvalidState(s.Cancel(now)), st)
			assert.False(t, s.CanFinalize(1, 1))
		}
	})
}

func TestDetail_SetCount(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	d := Detail{SystemQuantity: 10}

	changed := d.SetCount(UpdateCountInput{CountedQuantity: ptr[int64](7), Notes: ptr(" roto ")}, "u-1", now)
	require.True(t, changed)
	assert.Equal(t, int64(-3), *d.Variance)
	assert.Equal(t, "roto", *d.Notes)
	assert.Equal(t, now, *d.CountedAt)
	assert.Equal(t, "u-1", *d.CountedBy)

	before := d
	changed = d.SetCount(UpdateCountInput{CountedQuantity: ptr[int64](7), Notes: ptr("roto")}, "u-2", later)
	assert.False(t, changed)
	assert.Equal(t, before, d)

	changed = d.SetCount(UpdateCountInput{CountedQuantity: ptr[int64](7)}, "u-2", later)
	assert.False(t, changed, "nil notes leaves notes untouched")
	assert.Equal(t, "roto", *d.Notes)

	changed = d.SetCount(UpdateCountInput{Notes: ptr("")}, "u-2", later)
	require.True(t, changed)
	assert.Nil(t, d.CountedQuantity)
	assert.Nil(t, d.Variance)
	assert.Nil(t, d.Notes)
	assert.Nil(t, d.CountedAt)
	assert.Nil(t, d.CountedBy)
}

func TestDetail_NeedsAdjustment(t *testing.T) {
	assert.False(t, (&Detail{}).NeedsAdjustment())
	assert.False(t, (&Detail{Variance: ptr[int64](0)}).NeedsAdjustment())
	assert.True(t, (&Detail{Variance: ptr[int64](-2)}).NeedsAdjustment())
	assert.False(t, (&Detail{Variance: ptr[int64](-2), Adjusted: true}).NeedsAdjustment())
}

func TestDetail_ValuedVariance(t *testing.T) {
	d := Detail{Variance: ptr[int64](-3), UnitCost: 1250}
	assert.Equal(t, "-37.5", d.ValuedVariance().String())
	assert.True(t, (&Detail{UnitCost: 1250}).ValuedVariance().IsZero())
}
