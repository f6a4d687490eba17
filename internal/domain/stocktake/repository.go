package stocktake

import (
	"context"
	"time"

	"inventario/internal/core/id"
	"inventario/internal/core/types"
	"inventario/internal/domain"
)

// ListFilter narrows session listings.
type ListFilter struct {
	// Search is a case-insensitive substring match on name, description
	// and creator name.
	Search           string
	Status           *Status
	WarehouseID      *id.ID
	IncludeCancelled bool
	Limit            int
	Offset           int
}

// DetailFilter narrows detail listings of one session.
type DetailFilter struct {
	SessionID id.ID
	// Pending selects uncounted (true) or counted (false) lines; nil means all.
	Pending *bool
	Limit   int
	Offset  int
}

// DetailStats aggregates the lines of a session.
type DetailStats struct {
	Total         int              `db:"total"`
	Captured      int              `db:"captured"`
	Adjusted      int              `db:"adjusted"`
	Surplus       int              `db:"surplus"`
	Shortage      int              `db:"shortage"`
	Match         int              `db:"match"`
	NetVariance   int64            `db:"net_variance"`
	SurplusUnits  int64            `db:"surplus_units"`
	ShortageUnits int64            `db:"shortage_units"`
	ValuedDelta   types.MinorUnits `db:"valued_delta"`
}

// Pending is the number of uncounted lines.
func (s DetailStats) Pending() int {
	return s.Total - s.Captured
}

// Repository defines data access for sessions and their count lines.
type Repository interface {
	Create(ctx context.Context, s *Session) error

	// InsertDetails bulk-inserts the snapshot lines. Requires a transaction.
	InsertDetails(ctx context.Context, details []Detail) error

	// GetByID returns the session with TotalAdjustments populated.
	GetByID(ctx context.Context, id id.ID) (*Session, error)

	// GetForUpdate is GetByID with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, id id.ID) (*Session, error)

	// GetForShare is GetByID with a shared row lock: concurrent count
	// captures proceed together, a finalize waits for them and they wait
	// for a finalize.
	GetForShare(ctx context.Context, id id.ID) (*Session, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Session], error)

	// UpdateStatus persists a status transition. The write only applies while
	// the stored row is still in_progress at expectedVersion; otherwise it
	// returns a concurrent-modification error. On success s.Version is bumped.
	UpdateStatus(ctx context.Context, s *Session, expectedVersion int) error

	// Delete removes an in_progress session; details cascade.
	Delete(ctx context.Context, id id.ID) error

	// GetDetail returns a line of the given session, or not-found when the
	// line belongs to another session.
	GetDetail(ctx context.Context, sessionID, detailID id.ID) (*DetailView, error)

	ListDetails(ctx context.Context, filter DetailFilter) (domain.ListResult[DetailView], error)

	// AllDetails returns every line of a session in line order.
	AllDetails(ctx context.Context, sessionID id.ID) ([]DetailView, error)

	// UpdateDetailCount persists counted quantity, variance and notes. The
	// write only applies while the owning session is in_progress; otherwise
	// it returns an invalid-state error.
	UpdateDetailCount(ctx context.Context, d *Detail) error

	Stats(ctx context.Context, sessionID id.ID) (DetailStats, error)

	// PendingAdjustments lists lines with a non-zero variance not yet adjusted.
	PendingAdjustments(ctx context.Context, sessionID id.ID) ([]Detail, error)

	// MarkAdjusted flips adjusted for a line still unadjusted. It returns
	// false when another run got there first.
	MarkAdjusted(ctx context.Context, detailID id.ID, at time.Time) (bool, error)
}
