package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"inventario/internal/core/apperror"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
	"inventario/internal/infrastructure/export"
	"inventario/internal/infrastructure/http/v1/dto"
)

// StocktakeHandler handles HTTP requests for stock counts.
type StocktakeHandler struct {
	*BaseHandler
	service  *stocktake.Service
	products *product.Service
}

// NewStocktakeHandler creates a new stocktake handler.
func NewStocktakeHandler(base *BaseHandler, service *stocktake.Service, products *product.Service) *StocktakeHandler {
	return &StocktakeHandler{
		BaseHandler: base,
		service:     service,
		products:    products,
	}
}

// Create snapshots the catalog into a new session.
// POST /stocktakes
func (h *StocktakeHandler) Create(c *gin.Context) {
	var req dto.CreateStocktakeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	sess, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromSession(sess))
}

// List returns sessions newest first.
// GET /stocktakes
func (h *StocktakeHandler) List(c *gin.Context) {
	var q dto.ListStocktakesQuery
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

	items := make([]dto.StocktakeResponse, len(result.Items))
	for i, s := range result.Items {
		items[i] = dto.FromSession(s)
	}
	h.OK(c, dto.NewListResponse(items, q.PaginationRequest, result.TotalCount))
}

// Get returns one session.
// GET /stocktakes/:id
func (h *StocktakeHandler) Get(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	sess, err := h.service.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSession(sess))
}

// Summary returns capture progress and variance totals.
// GET /stocktakes/:id/summary
func (h *StocktakeHandler) Summary(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, summary)
}

// Export downloads the count sheet as XLSX.
// GET /stocktakes/:id/export
func (h *StocktakeHandler) Export(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	sess, lines, err := h.service.CountSheet(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCountSheet(&buf, sess, lines); err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(sess)))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// ListDetails returns the count lines of a session.
// GET /stocktakes/:id/details
func (h *StocktakeHandler) ListDetails(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var q dto.ListDetailsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	result, err := h.service.GetDetails(c.Request.Context(), q.ToFilter(sessionID))
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.DetailResponse, len(result.Items))
	for i := range result.Items {
		items[i] = dto.FromDetailView(&result.Items[i])
	}
	h.OK(c, dto.NewListResponse(items, q.PaginationRequest, result.TotalCount))
}

// UpdateDetail captures or clears a counted quantity.
// PUT /stocktakes/:id/details/:detailId
func (h *StocktakeHandler) UpdateDetail(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	detailID, ok := h.ParamID(c, "detailId")
	if !ok {
		return
	}

	var req dto.UpdateCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	view, err := h.service.UpdateCount(c.Request.Context(), sessionID, detailID, in)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDetailView(view))
}

// Delete removes an in-progress session.
// DELETE /stocktakes/:id
func (h *StocktakeHandler) Delete(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), sessionID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// Cancel abandons an in-progress session.
// POST /stocktakes/:id/cancel
func (h *StocktakeHandler) Cancel(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	sess, err := h.service.Cancel(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSession(sess))
}

// CanFinalize reports whether every line is counted.
// GET /stocktakes/:id/can-finalize
func (h *StocktakeHandler) CanFinalize(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	can, err := h.service.CanFinalize(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.CanFinalizeResponse{CanFinalize: can})
}

// Finalize closes counting.
// POST /stocktakes/:id/finalize
func (h *StocktakeHandler) Finalize(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	sess, err := h.service.Finalize(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromSession(sess))
}

// ApplyAdjustments pushes variances into live stock. A run where some lines
// failed answers 207 with the full per-line summary.
// POST /stocktakes/:id/adjustments
func (h *StocktakeHandler) ApplyAdjustments(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.ApplyAdjustments(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if result.HasFailures() {
		h.Error(c, apperror.NewAdjustmentPartialFailure(len(result.Failed), len(result.Succeeded), result))
		return
	}

	h.OK(c, result)
}

// Movements lists the stock movements written by a session's adjustments.
// GET /stocktakes/:id/movements
func (h *StocktakeHandler) Movements(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.service.GetByID(ctx, sessionID); err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.products.Movements(ctx, sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = dto.FromMovement(m)
	}
	h.OK(c, gin.H{"data": out})
}

// History returns the audit trail of a session.
// GET /stocktakes/:id/history
func (h *StocktakeHandler) History(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	entries, err := h.service.History(c.Request.Context(), sessionID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"data": entries})
}

// DetailHistory returns the capture trail of one line.
// GET /stocktakes/:id/details/:detailId/history
func (h *StocktakeHandler) DetailHistory(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	detailID, ok := h.ParamID(c, "detailId")
	if !ok {
		return
	}

	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	entries, err := h.service.DetailHistory(c.Request.Context(), sessionID, detailID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{"data": entries})
}
