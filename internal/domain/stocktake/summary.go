package stocktake

import (
	"context"
	"fmt"

	"inventario/internal/core/id"
	"inventario/internal/core/types"
)

// Summary backs the "N of M captured" progress view and the variance report.
type Summary struct {
	SessionID     id.ID       `json:"sessionId"`
	Status        Status      `json:"status"`
	CanFinalize   bool        `json:"canFinalize"`
	Total         int         `json:"total"`
	Captured      int         `json:"captured"`
	Pending       int         `json:"pending"`
	Surplus       int         `json:"surplus"`
	Shortage      int         `json:"shortage"`
	Match         int         `json:"match"`
	Adjusted      int         `json:"adjusted"`
	NetVariance   int64       `json:"netVariance"`
	SurplusUnits  int64       `json:"surplusUnits"`
	ShortageUnits int64       `json:"shortageUnits"`
	ValuedDelta   types.Money `json:"valuedDelta"`
}

// Summary returns capture progress and variance totals for a session.
func (s *Service) Summary(ctx context.Context, sessionID id.ID) (*Summary, error) {
	var (
		sess  *Session
		stats DetailStats
	)
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.repo.GetByID(ctx, sessionID); err != nil {
			return err
		}
		if stats, err = s.repo.Stats(ctx, sessionID); err != nil {
			return fmt.Errorf("session stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Summary{
		SessionID:     sess.ID,
		Status:        sess.Status,
		CanFinalize:   sess.CanFinalize(stats.Total, stats.Captured),
		Total:         stats.Total,
		Captured:      stats.Captured,
		Pending:       stats.Pending(),
		Surplus:       stats.Surplus,
		Shortage:      stats.Shortage,
		Match:         stats.Match,
		Adjusted:      stats.Adjusted,
		NetVariance:   stats.NetVariance,
		SurplusUnits:  stats.SurplusUnits,
		ShortageUnits: stats.ShortageUnits,
		ValuedDelta:   stats.ValuedDelta.ToMoney(),
	}, nil
}

// CountSheet returns a session with every line, for export.
func (s *Service) CountSheet(ctx context.Context, sessionID id.ID) (*Session, []DetailView, error) {
	var (
		sess    *Session
		details []DetailView
	)
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		if sess, err = s.repo.GetByID(ctx, sessionID); err != nil {
			return err
		}
		if details, err = s.repo.AllDetails(ctx, sessionID); err != nil {
			return fmt.Errorf("load details: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, details, nil
}
