package audit

import (
	"context"
	"fmt"
	"time"

	"inventario/internal/core/id"
)

// HistoryEntry is a stored audit entry as shown to readers.
type HistoryEntry struct {
	ID        id.ID          `json:"id"`
	Action    Action         `json:"action"`
	UserID    *string        `json:"userId,omitempty"`
	UserName  *string        `json:"userName,omitempty"`
	Changes   map[string]any `json:"changes,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// HistoryReader returns the newest audit entries of an entity.
type HistoryReader interface {
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]HistoryEntry, error)
}

// Diff calculates the difference between old and new entity states as
// {"field": {"old": ..., "new": ...}} for every field that changed.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !equal(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}

func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
