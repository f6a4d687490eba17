package stocktaketest

import (
	"context"
	"slices"
	"sync"
	"time"

	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/domain/audit"
)

type storedEntry struct {
	audit.Entry
	history audit.HistoryEntry
}

// AuditLog records audit entries in memory and serves them back as history.
type AuditLog struct {
	mu      sync.Mutex
	entries []storedEntry
	Err     error
}

var (
	_ audit.Recorder      = (*AuditLog)(nil)
	_ audit.HistoryReader = (*AuditLog)(nil)
)

// Record implements audit.Recorder.
func (l *AuditLog) Record(ctx context.Context, e audit.Entry) error {
	if l.Err != nil {
		return l.Err
	}
	h := audit.HistoryEntry{
		ID:        id.New(),
		Action:    e.Action,
		Changes:   e.Changes,
		CreatedAt: time.Now().UTC(),
	}
	if user := appctx.GetUser(ctx); user != nil {
		uid, name := user.UserID, appctx.GetUserName(ctx)
		h.UserID, h.UserName = &uid, &name
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, storedEntry{Entry: e, history: h})
	return nil
}

// History implements audit.HistoryReader.
func (l *AuditLog) History(_ context.Context, entityType string, entityID id.ID, limit int) ([]audit.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []audit.HistoryEntry
	for _, e := range slices.Backward(l.entries) {
		if e.EntityType != entityType || e.EntityID != entityID {
			continue
		}
		out = append(out, e.history)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Actions returns recorded actions in order.
func (l *AuditLog) Actions() []audit.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audit.Action, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Action)
	}
	return out
}
