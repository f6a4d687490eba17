package stocktake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventario/internal/core/apperror"
	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/core/numerator"
	"inventario/internal/domain/audit"
	"inventario/internal/domain/catalogs/product"
	"inventario/internal/domain/stocktake"
	"inventario/internal/domain/stocktake/stocktaketest"
)

func ptr[T any](v T) *T { return &v }

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "u-1",
		Name:   "Ana Torres",
	})
}

// newSession seeds products with the given quantities and opens a session over them.
func newSession(t *testing.T, kit *stocktaketest.Kit, quantities ...int64) (*stocktake.Session, []stocktake.Detail, []product.Product) {
	t.Helper()
	products := make([]product.Product, 0, len(quantities))
	for i, q := range quantities {
		products = append(products, kit.Products.Seed(string(rune('A'+i))+"-001", q, 1000, nil))
	}
	sess, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Conteo general"})
	require.NoError(t, err)
	return sess, kit.Sessions.DetailsOf(sess.ID), products
}

func capture(t *testing.T, kit *stocktaketest.Kit, d stocktake.Detail, qty int64) *stocktake.DetailView {
	t.Helper()
	v, err := kit.Service.UpdateCount(testCtx(), d.SessionID, d.ID, stocktake.UpdateCountInput{CountedQuantity: &qty})
	require.NoError(t, err)
	return v
}

func TestCreate_SnapshotsCatalog(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10, 0, 4)

	assert.Equal(t, stocktake.StatusInProgress, sess.Status)
	assert.Equal(t, 3, sess.TotalProducts)
	assert.Equal(t, "u-1", sess.CreatedBy)
	assert.Equal(t, "Ana Torres", sess.CreatedByName)
	assert.Regexp(t, `^INV-\d{4}-00001$`, sess.Number)
	require.Len(t, details, 3)
	for i, d := range details {
		assert.Equal(t, products[i].ID, d.ProductID)
		assert.Equal(t, products[i].Quantity, d.SystemQuantity)
		assert.Nil(t, d.CountedQuantity)
	}
	assert.Equal(t, []audit.Action{audit.ActionCreate}, kit.Audit.Actions())
}

func TestCreate_SnapshotIsPointInTime(t *testing.T) {
	kit := stocktaketest.NewKit()
	_, details, products := newSession(t, kit, 10)

	kit.Products.SetQuantity(products[0].ID, 3)

	d, ok := kit.Sessions.Detail(details[0].ID)
	require.True(t, ok)
	assert.Equal(t, int64(10), d.SystemQuantity)
}

func TestCreate_WarehouseScope(t *testing.T) {
	kit := stocktaketest.NewKit()
	wh := id.New()
	kit.Products.Seed("A", 1, 0, &wh)
	kit.Products.Seed("B", 1, 0, nil)
	inactive := kit.Products.Seed("C", 1, 0, &wh)
	kit.Products.Deactivate(inactive.ID)

	sess, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Bodega", WarehouseID: &wh})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.TotalProducts)
}

func TestCreate_NoProducts(t *testing.T) {
	kit := stocktaketest.NewKit()
	wh := id.New()

	_, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Vacío", WarehouseID: &wh})

	assert.True(t, apperror.HasCode(err, apperror.CodeNoProducts))
	res, err := kit.Service.List(testCtx(), stocktake.ListFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestCreate_Validation(t *testing.T) {
	kit := stocktaketest.NewKit()
	kit.Products.Seed("A", 1, 0, nil)

	_, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: " x "})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCreate_DetailFailureLeavesNoSession(t *testing.T) {
	kit := stocktaketest.NewKit()
	kit.Products.Seed("A", 1, 0, nil)
	kit.DB.FailNext("InsertDetails", errors.New("copy failed"))

	_, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Conteo"})
	require.Error(t, err)

	res, err := kit.Service.List(testCtx(), stocktake.ListFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
}

func TestUpdateCount_Idempotent(t *testing.T) {
	kit := stocktaketest.NewKit()
	_, details, _ := newSession(t, kit, 10)
	d := details[0]

	in := stocktake.UpdateCountInput{CountedQuantity: ptr[int64](7), Notes: ptr("caja abierta")}
	first, err := kit.Service.UpdateCount(testCtx(), d.SessionID, d.ID, in)
	require.NoError(t, err)
	stored1, _ := kit.Sessions.Detail(d.ID)

	second, err := kit.Service.UpdateCount(testCtx(), d.SessionID, d.ID, in)
	require.NoError(t, err)
	stored2, _ := kit.Sessions.Detail(d.ID)

	assert.Equal(t, stored1, stored2)
	assert.Equal(t, first.Detail, second.Detail)
	assert.Equal(t, int64(-3), *stored2.Variance)
	assert.Equal(t, "A-001", second.ProductCode)
}

func TestUpdateCount_UncaptureRoundTrip(t *testing.T) {
	kit := stocktaketest.NewKit()
	_, details, _ := newSession(t, kit, 10)
	d := details[0]

	capture(t, kit, d, 5)
	v, err := kit.Service.UpdateCount(testCtx(), d.SessionID, d.ID, stocktake.UpdateCountInput{})
	require.NoError(t, err)

	assert.Nil(t, v.CountedQuantity)
	assert.Nil(t, v.Variance)
	stored, _ := kit.Sessions.Detail(d.ID)
	assert.Nil(t, stored.CountedQuantity)
	assert.Nil(t, stored.Variance)
}

func TestUpdateCount_HoldsSessionShared(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 10)

	capture(t, kit, details[0], 4)
	assert.Equal(t, int32(1), kit.Sessions.SharedReads.Load())

	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)
	_, err = kit.Service.UpdateCount(testCtx(), sess.ID, details[0].ID, stocktake.UpdateCountInput{})
	assert.True(t, apperror.IsInvalidState(err))
	assert.Equal(t, int32(2), kit.Sessions.SharedReads.Load())
}

func TestUpdateCount_RejectsNegative(t *testing.T) {
	kit := stocktaketest.NewKit()
	_, details, _ := newSession(t, kit, 10)

	_, err := kit.Service.UpdateCount(testCtx(), details[0].SessionID, details[0].ID,
		stocktake.UpdateCountInput{CountedQuantity: ptr[int64](-1)})

	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestUpdateCount_DetailOfOtherSession(t *testing.T) {
	kit := stocktaketest.NewKit()
	s1, _, _ := newSession(t, kit, 10)
	_, d2, _ := newSession(t, kit)

	_, err := kit.Service.UpdateCount(testCtx(), s1.ID, d2[0].ID, stocktake.UpdateCountInput{CountedQuantity: ptr[int64](1)})
	assert.True(t, apperror.IsNotFound(err))

	_, err = kit.Service.UpdateCount(testCtx(), id.New(), d2[0].ID, stocktake.UpdateCountInput{CountedQuantity: ptr[int64](1)})
	assert.True(t, apperror.IsNotFound(err))
}

func TestFinalize_Monotonic(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 10)
	capture(t, kit, details[0], 10)

	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	_, err = kit.Service.UpdateCount(testCtx(), sess.ID, details[0].ID, stocktake.UpdateCountInput{CountedQuantity: ptr[int64](3)})
	assert.True(t, apperror.IsInvalidState(err))

	_, err = kit.Service.Finalize(testCtx(), sess.ID)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = kit.Service.Cancel(testCtx(), sess.ID)
	assert.True(t, apperror.IsInvalidState(err))

	stored, _ := kit.Sessions.Detail(details[0].ID)
	assert.Equal(t, int64(10), *stored.CountedQuantity)
}

func TestFinalize_PersistenceFailureKeepsInProgress(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 10)
	capture(t, kit, details[0], 10)
	kit.DB.FailNext("UpdateStatus", errors.New("connection reset"))

	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.Error(t, err)

	got, err := kit.Service.GetByID(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktake.StatusInProgress, got.Status)
	assert.Nil(t, got.FinalizedAt)

	ok, err := kit.Service.CanFinalize(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFinalize_EmptySession(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 1)
	// A session whose lines vanished is a data error, never a vacuous success.
	for _, d := range details {
		kit.DB.DropDetail(d.ID)
	}

	ok, err := kit.Service.CanFinalize(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = kit.Service.Finalize(testCtx(), sess.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeEmptySession))
}

func TestCancel_HiddenFromDefaultList(t *testing.T) {
	kit := stocktaketest.NewKit()
	open, _, _ := newSession(t, kit, 1)
	cancelled, _, _ := newSession(t, kit, 1)

	got, err := kit.Service.Cancel(testCtx(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktake.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)

	res, err := kit.Service.List(testCtx(), stocktake.ListFilter{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, open.ID, res.Items[0].ID)

	res, err = kit.Service.List(testCtx(), stocktake.ListFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	_, err = kit.Service.Finalize(testCtx(), cancelled.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestList_Search(t *testing.T) {
	kit := stocktaketest.NewKit()
	kit.Products.Seed("A", 1, 0, nil)

	_, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Bodega Norte"})
	require.NoError(t, err)
	_, err = kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Tienda", Description: ptr("revisión de NORTE")})
	require.NoError(t, err)
	_, err = kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Sur"})
	require.NoError(t, err)

	res, err := kit.Service.List(testCtx(), stocktake.ListFilter{Search: "norte"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	res, err = kit.Service.List(testCtx(), stocktake.ListFilter{Search: "ana tor"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 3)

	bad := stocktake.Status("open")
	_, err = kit.Service.List(testCtx(), stocktake.ListFilter{Status: &bad})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestGetDetails_PendingFilterAndPaging(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 1, 2, 3)
	capture(t, kit, details[1], 2)

	pending, err := kit.Service.GetDetails(testCtx(), stocktake.DetailFilter{SessionID: sess.ID, Pending: ptr(true)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.TotalCount)

	counted, err := kit.Service.GetDetails(testCtx(), stocktake.DetailFilter{SessionID: sess.ID, Pending: ptr(false)})
	require.NoError(t, err)
	require.Len(t, counted.Items, 1)
	assert.Equal(t, details[1].ID, counted.Items[0].ID)

	page, err := kit.Service.GetDetails(testCtx(), stocktake.DetailFilter{SessionID: sess.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Items[0].LineNo)

	_, err = kit.Service.GetDetails(testCtx(), stocktake.DetailFilter{SessionID: id.New()})
	assert.True(t, apperror.IsNotFound(err))
}

func TestSummary(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 10, 5, 3, 8)
	capture(t, kit, details[0], 7) // -3
	capture(t, kit, details[1], 6) // +1
	capture(t, kit, details[2], 3) // 0

	sum, err := kit.Service.Summary(testCtx(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 3, sum.Captured)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.Surplus)
	assert.Equal(t, 1, sum.Shortage)
	assert.Equal(t, 1, sum.Match)
	assert.Equal(t, int64(-2), sum.NetVariance)
	assert.Equal(t, int64(1), sum.SurplusUnits)
	assert.Equal(t, int64(3), sum.ShortageUnits)
	assert.Equal(t, "-20", sum.ValuedDelta.String())
	assert.False(t, sum.CanFinalize)
	assert.Equal(t, int32(1), kit.Tx.ReadOnlyCalls.Load())
}

// Scenario A: capture, finalize and adjust a two-product session.
func TestScenarioA_FullCycle(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10, 0)
	p1, p2 := products[0], products[1]

	v1 := capture(t, kit, details[0], 7)
	assert.Equal(t, int64(-3), *v1.Variance)
	v2 := capture(t, kit, details[1], 0)
	assert.Equal(t, int64(0), *v2.Variance)

	ok, err := kit.Service.CanFinalize(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	fin, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktake.StatusFinalized, fin.Status)
	assert.NotNil(t, fin.FinalizedAt)
	assert.Equal(t, int64(10), kit.Products.Quantity(p1.ID), "finalize does not touch stock")

	res, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.False(t, res.HasFailures())
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, p1.ID, res.Succeeded[0].ProductID)
	assert.Equal(t, int64(7), res.Succeeded[0].NewQuantity)
	assert.Equal(t, 1, res.TotalAdjustments)

	assert.Equal(t, int64(7), kit.Products.Quantity(p1.ID))
	assert.Equal(t, int64(0), kit.Products.Quantity(p2.ID))

	d1, _ := kit.Sessions.Detail(details[0].ID)
	d2, _ := kit.Sessions.Detail(details[1].ID)
	assert.True(t, d1.Adjusted)
	assert.NotNil(t, d1.AdjustedAt)
	assert.False(t, d2.Adjusted, "zero-variance lines stay unadjusted")

	got, err := kit.Service.GetByID(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalAdjustments)

	moves, err := kit.Catalog.Movements(testCtx(), sess.ID)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, int64(-3), moves[0].Delta)
	assert.Equal(t, int64(10), moves[0].QuantityBefore)
	assert.Equal(t, int64(7), moves[0].QuantityAfter)
	assert.Equal(t, stocktake.EntityName, moves[0].RecorderType)
}

// Scenario B: two of three lines captured.
func TestScenarioB_IncompleteCapture(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 1, 2, 3)
	capture(t, kit, details[0], 1)
	capture(t, kit, details[1], 2)

	_, err := kit.Service.Finalize(testCtx(), sess.ID)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIncompleteCapture, appErr.Code)
	assert.Equal(t, 1, appErr.Details["pending"])
	assert.Equal(t, 3, appErr.Details["total"])

	got, err := kit.Service.GetByID(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, stocktake.StatusInProgress, got.Status)
}

// Scenario C: a finalized session cannot be deleted.
func TestScenarioC_DeleteFinalized(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 4)
	capture(t, kit, details[0], 4)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	err = kit.Service.Delete(testCtx(), sess.ID)

	assert.True(t, apperror.IsInvalidState(err))
	_, err = kit.Service.GetByID(testCtx(), sess.ID)
	assert.NoError(t, err)
}

func TestDelete_CascadesDetails(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, _, _ := newSession(t, kit, 1, 2)

	require.NoError(t, kit.Service.Delete(testCtx(), sess.ID))

	_, err := kit.Service.GetByID(testCtx(), sess.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Empty(t, kit.Sessions.DetailsOf(sess.ID))
	assert.True(t, apperror.IsNotFound(kit.Service.Delete(testCtx(), sess.ID)))
}

func TestApplyAdjustments_Idempotent(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10, 5)
	capture(t, kit, details[0], 12)
	capture(t, kit, details[1], 1)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	first, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, first.Succeeded, 2)
	callsAfterFirst := kit.Mutator.Calls

	second, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Succeeded)
	assert.Empty(t, second.Failed)
	assert.Equal(t, 2, second.TotalAdjustments)
	assert.Equal(t, callsAfterFirst, kit.Mutator.Calls)

	assert.Equal(t, int64(12), kit.Products.Quantity(products[0].ID))
	assert.Equal(t, int64(1), kit.Products.Quantity(products[1].ID))
}

func TestApplyAdjustments_AuditsPerProductResults(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10, 5)
	capture(t, kit, details[0], 12)
	capture(t, kit, details[1], 1)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)
	kit.Mutator.FailFor = map[id.ID]error{products[1].ID: errors.New("stock row locked")}

	_, err = kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)

	entries, err := kit.Service.History(testCtx(), sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAdjust, entries[0].Action)

	succeeded, ok := entries[0].Changes["succeeded"].([]stocktake.AdjustmentSuccess)
	require.True(t, ok)
	require.Len(t, succeeded, 1)
	assert.Equal(t, products[0].ID, succeeded[0].ProductID)
	assert.Equal(t, int64(2), succeeded[0].Delta)
	assert.Equal(t, int64(12), succeeded[0].NewQuantity)

	failed, ok := entries[0].Changes["failed"].([]stocktake.AdjustmentFailure)
	require.True(t, ok)
	require.Len(t, failed, 1)
	assert.Equal(t, products[1].ID, failed[0].ProductID)
	assert.Equal(t, int64(-4), failed[0].Delta)
}

func TestApplyAdjustments_PartialFailureIsRetryable(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10, 5, 8)
	capture(t, kit, details[0], 9)
	capture(t, kit, details[1], 7)
	capture(t, kit, details[2], 8)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	kit.Mutator.FailFor = map[id.ID]error{products[0].ID: errors.New("inventory api timeout")}

	res, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	assert.True(t, res.HasFailures())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, products[0].ID, res.Failed[0].ProductID)
	assert.Equal(t, apperror.CodeInternal, res.Failed[0].Code)
	require.Len(t, res.Succeeded, 1)
	assert.Equal(t, products[1].ID, res.Succeeded[0].ProductID)

	d0, _ := kit.Sessions.Detail(details[0].ID)
	assert.False(t, d0.Adjusted, "failed line is rolled back")
	assert.Equal(t, int64(10), kit.Products.Quantity(products[0].ID))

	kit.Mutator.FailFor = nil
	retry, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	require.Len(t, retry.Succeeded, 1)
	assert.Equal(t, products[0].ID, retry.Succeeded[0].ProductID)
	assert.Equal(t, 2, retry.TotalAdjustments)

	assert.Equal(t, int64(9), kit.Products.Quantity(products[0].ID))
	assert.Equal(t, int64(7), kit.Products.Quantity(products[1].ID))
}

func TestApplyAdjustments_InsufficientLiveStock(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, products := newSession(t, kit, 10)
	capture(t, kit, details[0], 2)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	// Stock moved elsewhere after the snapshot.
	kit.Products.SetQuantity(products[0].ID, 5)

	res, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, apperror.CodeInsufficientStock, res.Failed[0].Code)
	assert.Equal(t, int64(5), kit.Products.Quantity(products[0].ID))
}

func TestApplyAdjustments_RequiresFinalized(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, _, _ := newSession(t, kit, 10)

	_, err := kit.Service.ApplyAdjustments(testCtx(), sess.ID)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = kit.Service.ApplyAdjustments(testCtx(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

type recordingLocker struct {
	keys []string
	err  error
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func TestApplyAdjustments_UsesSessionLock(t *testing.T) {
	kit := stocktaketest.NewKit()
	locker := &recordingLocker{err: apperror.NewLocked("stocktake")}
	svc := stocktake.NewService(stocktake.ServiceConfig{
		Repo:      kit.Sessions,
		Catalog:   kit.Catalog,
		Stock:     kit.Mutator,
		Numerator: &numerator.SequenceGenerator{},
		TxManager: kit.Tx,
		Locker:    locker,
	})
	sess, details, _ := newSession(t, kit, 10)
	capture(t, kit, details[0], 1)
	_, err := svc.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	_, err = svc.ApplyAdjustments(testCtx(), sess.ID)

	assert.True(t, apperror.HasCode(err, apperror.CodeLocked))
	assert.Equal(t, []string{stocktake.AdjustmentLockKey(sess.ID)}, locker.keys)
	assert.Zero(t, kit.Mutator.Calls)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	kit := stocktaketest.NewKit()
	kit.Audit.Err = errors.New("audit down")

	sess, details, _ := newSession(t, kit, 1)
	capture(t, kit, details[0], 1)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	assert.NoError(t, err)
}

func TestHooks_AfterFinalize(t *testing.T) {
	kit := stocktaketest.NewKit()
	var seen []id.ID
	kit.Service.Hooks().OnAfterFinalize(func(_ context.Context, s *stocktake.Session) error {
		seen = append(seen, s.ID)
		return errors.New("ignored")
	})
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	kit.Service.SetClock(func() time.Time { return fixed })

	sess, details, _ := newSession(t, kit, 1)
	capture(t, kit, details[0], 1)
	fin, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, []id.ID{sess.ID}, seen)
	assert.Equal(t, fixed, *fin.FinalizedAt)
	assert.Equal(t, "INV-2026-00001", sess.Number)
}

func TestHooks_AfterUpdateAndDelete(t *testing.T) {
	kit := stocktaketest.NewKit()
	var updated, deleted []id.ID
	kit.Service.Hooks().OnAfterUpdate(func(_ context.Context, s *stocktake.Session) error {
		updated = append(updated, s.ID)
		return nil
	})
	kit.Service.Hooks().OnAfterDelete(func(_ context.Context, s *stocktake.Session) error {
		deleted = append(deleted, s.ID)
		return errors.New("ignored")
	})

	counted, details, _ := newSession(t, kit, 5)
	capture(t, kit, details[0], 3)
	capture(t, kit, details[0], 3)
	assert.Equal(t, []id.ID{counted.ID}, updated, "unchanged capture fires no hook")

	require.NoError(t, kit.Service.Delete(testCtx(), counted.ID))
	assert.Equal(t, []id.ID{counted.ID}, deleted)

	cancelled, err := kit.Service.Create(testCtx(), stocktake.CreateInput{Name: "Conteo parcial"})
	require.NoError(t, err)
	_, err = kit.Service.Cancel(testCtx(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{counted.ID, cancelled.ID}, updated)
}

func TestHistory_RecordsCountDiff(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 10)
	capture(t, kit, details[0], 7)
	capture(t, kit, details[0], 7)
	_, err := kit.Service.UpdateCount(testCtx(), sess.ID, details[0].ID, stocktake.UpdateCountInput{
		CountedQuantity: ptr(int64(7)),
		Notes:           ptr("caja abierta"),
	})
	require.NoError(t, err)

	entries, err := kit.Service.DetailHistory(testCtx(), sess.ID, details[0].ID, 0)
	require.NoError(t, err)

	require.Len(t, entries, 2, "repeated capture is not audited")
	assert.Equal(t, map[string]any{
		"notes": map[string]any{"old": nil, "new": "caja abierta"},
	}, entries[0].Changes["diff"])
	assert.Equal(t, map[string]any{
		"countedQuantity": map[string]any{"old": nil, "new": int64(7)},
		"variance":        map[string]any{"old": nil, "new": int64(-3)},
	}, entries[1].Changes["diff"])
	require.NotNil(t, entries[1].UserName)
	assert.Equal(t, "Ana Torres", *entries[1].UserName)
}

func TestHistory_Session(t *testing.T) {
	kit := stocktaketest.NewKit()
	sess, details, _ := newSession(t, kit, 1)
	capture(t, kit, details[0], 1)
	_, err := kit.Service.Finalize(testCtx(), sess.ID)
	require.NoError(t, err)

	entries, err := kit.Service.History(testCtx(), sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionFinalize, entries[0].Action)

	entries, err = kit.Service.History(testCtx(), sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = kit.Service.History(testCtx(), id.New(), 0)
	assert.True(t, apperror.IsNotFound(err))
	_, err = kit.Service.DetailHistory(testCtx(), id.New(), details[0].ID, 0)
	assert.True(t, apperror.IsNotFound(err))
}

func TestHistory_WithoutReader(t *testing.T) {
	kit := stocktaketest.NewKit()
	svc := stocktake.NewService(stocktake.ServiceConfig{
		Repo:      kit.Sessions,
		Catalog:   kit.Catalog,
		Stock:     kit.Mutator,
		Numerator: &numerator.SequenceGenerator{},
		TxManager: kit.Tx,
	})
	kit.Products.Seed("A-001", 1, 100, nil)
	sess, err := svc.Create(testCtx(), stocktake.CreateInput{Name: "Sin historial"})
	require.NoError(t, err)

	entries, err := svc.History(testCtx(), sess.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}
