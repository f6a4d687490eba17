package stocktake

import (
	"context"
	"fmt"

	"inventario/internal/core/id"
	"inventario/internal/domain/audit"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// History returns the audit trail of a session, newest first.
func (s *Service) History(ctx context.Context, sessionID id.ID, limit int) ([]audit.HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.history(ctx, EntityName, sessionID, limit)
}

// DetailHistory returns the capture trail of one line of a session.
func (s *Service) DetailHistory(ctx context.Context, sessionID, detailID id.ID, limit int) ([]audit.HistoryEntry, error) {
	if _, err := s.repo.GetDetail(ctx, sessionID, detailID); err != nil {
		return nil, err
	}
	return s.history(ctx, DetailEntityName, detailID, limit)
}

func (s *Service) history(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.HistoryEntry, error) {
	if s.historyReader == nil {
		return []audit.HistoryEntry{}, nil
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	entries, err := s.historyReader.History(ctx, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s history: %w", entityType, err)
	}
	if entries == nil {
		entries = []audit.HistoryEntry{}
	}
	return entries, nil
}

// countState is the audited part of a line.
func countState(d *Detail) map[string]any {
	state := map[string]any{"countedQuantity": nil, "variance": nil, "notes": nil}
	if d.CountedQuantity != nil {
		state["countedQuantity"] = *d.CountedQuantity
	}
	if d.Variance != nil {
		state["variance"] = *d.Variance
	}
	if d.Notes != nil {
		state["notes"] = *d.Notes
	}
	return state
}
