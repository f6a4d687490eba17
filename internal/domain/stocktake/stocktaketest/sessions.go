package stocktaketest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain"
	"inventario/internal/domain/stocktake"
)

// SessionRepo is an in-memory stocktake.Repository.
type SessionRepo struct {
	db *DB

	// SharedReads counts GetForShare calls.
	SharedReads atomic.Int32
}

var _ stocktake.Repository = (*SessionRepo)(nil)

// NewSessionRepo creates a session repository over db.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Detail returns the stored line, bypassing session ownership checks.
func (r *SessionRepo) Detail(detailID id.ID) (stocktake.Detail, bool) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.details[detailID]
	return d, ok
}

// DetailsOf returns the stored lines of a session in line order.
func (r *SessionRepo) DetailsOf(sessionID id.ID) []stocktake.Detail {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.detailsLocked(sessionID)
}

func (r *SessionRepo) detailsLocked(sessionID id.ID) []stocktake.Detail {
	var out []stocktake.Detail
	for _, d := range r.db.details {
		if d.SessionID == sessionID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b stocktake.Detail) int { return cmp.Compare(a.LineNo, b.LineNo) })
	return out
}

func (r *SessionRepo) Create(_ context.Context, s *stocktake.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("Create"); err != nil {
		return err
	}
	r.db.sessions[s.ID] = *s
	return nil
}

func (r *SessionRepo) InsertDetails(ctx context.Context, details []stocktake.Detail) error {
	if !InTx(ctx) {
		return apperror.NewInternal(nil).WithDetail("reason", "InsertDetails requires transaction context")
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("InsertDetails"); err != nil {
		return err
	}
	for _, d := range details {
		r.db.details[d.ID] = d
	}
	return nil
}

func (r *SessionRepo) GetByID(_ context.Context, sessionID id.ID) (*stocktake.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("GetByID"); err != nil {
		return nil, err
	}
	return r.getLocked(sessionID)
}

func (r *SessionRepo) getLocked(sessionID id.ID) (*stocktake.Session, error) {
	s, ok := r.db.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound(stocktake.EntityName, sessionID)
	}
	s.TotalAdjustments = 0
	for _, d := range r.db.details {
		if d.SessionID == sessionID && d.Adjusted {
			s.TotalAdjustments++
		}
	}
	return &s, nil
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, sessionID id.ID) (*stocktake.Session, error) {
	return r.GetByID(ctx, sessionID)
}

func (r *SessionRepo) GetForShare(ctx context.Context, sessionID id.ID) (*stocktake.Session, error) {
	r.SharedReads.Add(1)
	return r.GetByID(ctx, sessionID)
}

func (r *SessionRepo) List(_ context.Context, filter stocktake.ListFilter) (domain.ListResult[*stocktake.Session], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(filter.Search))
	var all []*stocktake.Session
	for sessionID, s := range r.db.sessions {
		if filter.Status != nil {
			if s.Status != *filter.Status {
				continue
			}
		} else if !filter.IncludeCancelled && s.Status == stocktake.StatusCancelled {
			continue
		}
		if filter.WarehouseID != nil && (s.WarehouseID == nil || *s.WarehouseID != *filter.WarehouseID) {
			continue
		}
		if q != "" && !matches(s, q) {
			continue
		}
		full, _ := r.getLocked(sessionID)
		all = append(all, full)
	}
	slices.SortFunc(all, func(a, b *stocktake.Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})

	return domain.ListResult[*stocktake.Session]{
		Items:      paginate(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func matches(s stocktake.Session, q string) bool {
	if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.CreatedByName), q) {
		return true
	}
	return s.Description != nil && strings.Contains(strings.ToLower(*s.Description), q)
}

func (r *SessionRepo) UpdateStatus(_ context.Context, s *stocktake.Session, expectedVersion int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("UpdateStatus"); err != nil {
		return err
	}

	stored, ok := r.db.sessions[s.ID]
	if !ok {
		return apperror.NewNotFound(stocktake.EntityName, s.ID)
	}
	if stored.Status != stocktake.StatusInProgress || stored.Version != expectedVersion {
		return apperror.NewConcurrentModification(stocktake.EntityName, s.ID)
	}

	stored.Status = s.Status
	stored.FinalizedAt = s.FinalizedAt
	stored.CancelledAt = s.CancelledAt
	stored.UpdatedAt = s.UpdatedAt
	stored.Version = expectedVersion + 1
	r.db.sessions[s.ID] = stored

	s.Version = stored.Version
	return nil
}

func (r *SessionRepo) Delete(_ context.Context, sessionID id.ID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("Delete"); err != nil {
		return err
	}

	s, ok := r.db.sessions[sessionID]
	if !ok {
		return apperror.NewNotFound(stocktake.EntityName, sessionID)
	}
	if s.Status != stocktake.StatusInProgress {
		return apperror.NewConcurrentModification(stocktake.EntityName, sessionID)
	}
	delete(r.db.sessions, sessionID)
	for detailID, d := range r.db.details {
		if d.SessionID == sessionID {
			delete(r.db.details, detailID)
		}
	}
	return nil
}

func (r *SessionRepo) GetDetail(_ context.Context, sessionID, detailID id.ID) (*stocktake.DetailView, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	d, ok := r.db.details[detailID]
	if !ok || d.SessionID != sessionID {
		return nil, apperror.NewNotFound(stocktake.DetailEntityName, detailID)
	}
	v := r.viewLocked(d)
	return &v, nil
}

func (r *SessionRepo) viewLocked(d stocktake.Detail) stocktake.DetailView {
	p := r.db.products[d.ProductID]
	return stocktake.DetailView{Detail: d, ProductCode: p.Code, ProductName: p.Name}
}

func (r *SessionRepo) ListDetails(_ context.Context, filter stocktake.DetailFilter) (domain.ListResult[stocktake.DetailView], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var all []stocktake.DetailView
	for _, d := range r.detailsLocked(filter.SessionID) {
		if filter.Pending != nil && *filter.Pending == d.IsCaptured() {
			continue
		}
		all = append(all, r.viewLocked(d))
	}

	return domain.ListResult[stocktake.DetailView]{
		Items:      paginate(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *SessionRepo) AllDetails(_ context.Context, sessionID id.ID) ([]stocktake.DetailView, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	details := r.detailsLocked(sessionID)
	out := make([]stocktake.DetailView, 0, len(details))
	for _, d := range details {
		out = append(out, r.viewLocked(d))
	}
	return out, nil
}

func (r *SessionRepo) UpdateDetailCount(_ context.Context, d *stocktake.Detail) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("UpdateDetailCount"); err != nil {
		return err
	}

	s, ok := r.db.sessions[d.SessionID]
	if !ok || s.Status != stocktake.StatusInProgress {
		status := "missing"
		if ok {
			status = string(s.Status)
		}
		return apperror.NewInvalidState(stocktake.EntityName, status, "update count of")
	}
	stored, ok := r.db.details[d.ID]
	if !ok {
		return apperror.NewNotFound(stocktake.DetailEntityName, d.ID)
	}

	stored.CountedQuantity = clonePtr(d.CountedQuantity)
	stored.Variance = clonePtr(d.Variance)
	stored.Notes = clonePtr(d.Notes)
	stored.CountedAt = clonePtr(d.CountedAt)
	stored.CountedBy = clonePtr(d.CountedBy)
	r.db.details[d.ID] = stored
	return nil
}

func (r *SessionRepo) Stats(_ context.Context, sessionID id.ID) (stocktake.DetailStats, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("Stats"); err != nil {
		return stocktake.DetailStats{}, err
	}

	var st stocktake.DetailStats
	for _, d := range r.detailsLocked(sessionID) {
		st.Total++
		if d.Adjusted {
			st.Adjusted++
		}
		kind := d.Kind()
		if kind == stocktake.VariancePending {
			continue
		}
		st.Captured++
		v := *d.Variance
		st.NetVariance += v
		st.ValuedDelta += d.UnitCost * types.MinorUnits(v)
		switch kind {
		case stocktake.VarianceSurplus:
			st.Surplus++
			st.SurplusUnits += v
		case stocktake.VarianceShortage:
			st.Shortage++
			st.ShortageUnits -= v
		default:
			st.Match++
		}
	}
	return st, nil
}

func (r *SessionRepo) PendingAdjustments(_ context.Context, sessionID id.ID) ([]stocktake.Detail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("PendingAdjustments"); err != nil {
		return nil, err
	}

	var out []stocktake.Detail
	for _, d := range r.detailsLocked(sessionID) {
		if d.NeedsAdjustment() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *SessionRepo) MarkAdjusted(_ context.Context, detailID id.ID, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.takeFailure("MarkAdjusted"); err != nil {
		return false, err
	}

	d, ok := r.db.details[detailID]
	if !ok || d.Adjusted {
		return false, nil
	}
	d.Adjusted = true
	d.AdjustedAt = &at
	r.db.details[detailID] = d
	return true, nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
