package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/core/numerator"
	"inventario/internal/domain/audit"
	"inventario/internal/domain/stocktake"
	"inventario/internal/domain/stocktake/stocktaketest"
)

func newTestAuditService(t *testing.T, threshold int) *AuditService {
	t.Helper()
	s, err := NewAuditService(nil)
	require.NoError(t, err)
	s.compressThreshold = threshold
	return s
}

func TestAuditEntry_AttributesUser(t *testing.T) {
	s := newTestAuditService(t, defaultCompressThreshold)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", Name: "Lucía"})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	entry, err := s.newEntry(ctx, audit.Entry{
		EntityType: "stocktake",
		EntityID:   id.New(),
		Action:     audit.ActionFinalize,
		Changes:    map[string]any{"status": "finalized"},
	}, now)
	require.NoError(t, err)

	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	assert.Equal(t, "Lucía", *entry.UserName)
	assert.Equal(t, CompressionNone, entry.CompressionAlgo)
	assert.JSONEq(t, `{"status":"finalized"}`, string(entry.Changes))
	assert.Equal(t, now, entry.CreatedAt)
}

func TestAuditEntry_CompressesLargePayload(t *testing.T) {
	s := newTestAuditService(t, 64)
	changes := map[string]any{"notes": strings.Repeat("conteo ", 100)}

	entry, err := s.newEntry(context.Background(), audit.Entry{
		EntityType: "stocktake",
		EntityID:   id.New(),
		Action:     audit.ActionAdjust,
		Changes:    changes,
	}, time.Now())
	require.NoError(t, err)

	assert.Nil(t, entry.UserID)
	assert.Nil(t, entry.Changes)
	assert.Equal(t, CompressionZstd, entry.CompressionAlgo)
	assert.NotEmpty(t, entry.ChangesCompressed)

	require.NoError(t, s.expand(&entry))
	var got map[string]any
	require.NoError(t, json.Unmarshal(entry.Changes, &got))
	assert.Equal(t, changes, got)
}

func TestAuditHistory_ExpandsCompressedChanges(t *testing.T) {
	s := newTestAuditService(t, 16)
	entry, err := s.newEntry(context.Background(), audit.Entry{
		EntityType: "stocktake",
		EntityID:   id.New(),
		Action:     audit.ActionFinalize,
		Changes:    map[string]any{"status": "finalized", "number": "INV-2026-00001"},
	}, time.Now())
	require.NoError(t, err)
	require.Equal(t, CompressionZstd, entry.CompressionAlgo)

	h, err := s.toHistory(&entry)
	require.NoError(t, err)

	assert.Equal(t, audit.ActionFinalize, h.Action)
	assert.Equal(t, map[string]any{"status": "finalized", "number": "INV-2026-00001"}, h.Changes)
}

func TestAuditHistory_Query(t *testing.T) {
	s := newTestAuditService(t, defaultCompressThreshold)
	entityID := id.New()

	sql, args, err := s.historyQuery("stocktake", entityID, 50).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, entity_type, entity_id, action, user_id, user_name, changes, changes_compressed, compression_algo, created_at "+
			"FROM sys_audit WHERE entity_id = $1 AND entity_type = $2 ORDER BY created_at DESC, id DESC LIMIT 50",
		sql)
	assert.Equal(t, []any{entityID, "stocktake"}, args)
}

// rowLog keeps sys_audit rows in memory, built and read back the way
// AuditService does against the database.
type rowLog struct {
	svc  *AuditService
	rows []AuditEntry
}

func (l *rowLog) Record(ctx context.Context, e audit.Entry) error {
	row, err := l.svc.newEntry(ctx, e, time.Now().UTC())
	if err != nil {
		return err
	}
	l.rows = append(l.rows, row)
	return nil
}

func (l *rowLog) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]audit.HistoryEntry, error) {
	var out []audit.HistoryEntry
	for _, row := range slices.Backward(l.rows) {
		if row.EntityType != entityType || row.EntityID != entityID {
			continue
		}
		h, err := l.svc.toHistory(&row)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestAuditService_CompressesLargeAdjustment(t *testing.T) {
	kit := stocktaketest.NewKit()
	store := &rowLog{svc: newTestAuditService(t, defaultCompressThreshold)}
	svc := stocktake.NewService(stocktake.ServiceConfig{
		Repo:      kit.Sessions,
		Catalog:   kit.Catalog,
		Stock:     kit.Mutator,
		Numerator: &numerator.SequenceGenerator{},
		TxManager: kit.Tx,
		Audit:     store,
		History:   store,
	})

	const lines = 120
	for i := range lines {
		kit.Products.Seed(fmt.Sprintf("P-%03d", i), 10, 500, nil)
	}
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u-1", Name: "Lucía"})
	sess, err := svc.Create(ctx, stocktake.CreateInput{Name: "Conteo anual"})
	require.NoError(t, err)
	for _, d := range kit.Sessions.DetailsOf(sess.ID) {
		qty := int64(12)
		_, err := svc.UpdateCount(ctx, sess.ID, d.ID, stocktake.UpdateCountInput{CountedQuantity: &qty})
		require.NoError(t, err)
	}
	_, err = svc.Finalize(ctx, sess.ID)
	require.NoError(t, err)

	result, err := svc.ApplyAdjustments(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, result.Succeeded, lines)

	last := store.rows[len(store.rows)-1]
	require.Equal(t, audit.ActionAdjust, last.Action)
	assert.Equal(t, CompressionZstd, last.CompressionAlgo)
	assert.Nil(t, last.Changes)
	assert.NotEmpty(t, last.ChangesCompressed)

	entries, err := svc.History(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionAdjust, entries[0].Action)

	succeeded, ok := entries[0].Changes["succeeded"].([]any)
	require.True(t, ok)
	require.Len(t, succeeded, lines)
	first := succeeded[0].(map[string]any)
	assert.Equal(t, float64(2), first["delta"])
	assert.Equal(t, float64(12), first["newQuantity"])
	assert.Equal(t, []any{}, entries[0].Changes["failed"])
}
