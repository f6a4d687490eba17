package stocktake

import (
	"context"
	"fmt"
	"time"

	"inventario/internal/core/apperror"
	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/core/numerator"
	"inventario/internal/core/tx"
	"inventario/internal/domain"
	"inventario/internal/domain/audit"
	"inventario/pkg/logger"
)

// NumberPrefix is the document number prefix of sessions.
const NumberPrefix = "INV"

// ServiceConfig wires the service collaborators. Locker, Audit and History
// are optional.
type ServiceConfig struct {
	Repo      Repository
	Catalog   ProductCatalog
	Stock     StockMutator
	Numerator numerator.Generator
	TxManager tx.Manager
	Locker    Locker
	Audit     audit.Recorder
	History   audit.HistoryReader
}

// Service provides the stock count workflow.
type Service struct {
	repo      Repository
	catalog   ProductCatalog
	stock     StockMutator
	numerator numerator.Generator
	txManager tx.Manager
	locker    Locker
	audit     audit.Recorder
	hooks     *domain.HookRegistry[*Session]
	now       func() time.Time

	historyReader audit.HistoryReader
}

// NewService creates a new stocktake service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		catalog:   cfg.Catalog,
		stock:     cfg.Stock,
		numerator: cfg.Numerator,
		txManager: cfg.TxManager,
		locker:    cfg.Locker,
		audit:     cfg.Audit,
		hooks:     domain.NewHookRegistry[*Session](),
		now:       func() time.Time { return time.Now().UTC() },

		historyReader: cfg.History,
	}
	if s.locker == nil {
		s.locker = LocalLocker{}
	}
	if s.audit == nil {
		s.audit = audit.NopRecorder{}
	}

	s.hooks.OnBeforeCreate(func(ctx context.Context, sess *Session) error {
		audit.EnrichCreatedByDirect(ctx, &sess.CreatedBy, &sess.CreatedByName)
		return nil
	})
	return s
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Session] {
	return s.hooks
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create snapshots the catalog in scope and opens a session with one
// pending line per product. Session and lines are written atomically.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sess := NewSession(in, s.now())
	if err := s.hooks.Run(ctx, domain.BeforeCreate, sess); err != nil {
		return nil, err
	}

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(NumberPrefix), sess.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	sess.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		products, err := s.catalog.ListForCount(ctx, in.WarehouseID)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			return apperror.NewNoProducts(scopeOf(in.WarehouseID))
		}

		details := sess.Snapshot(products)
		if err := s.repo.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := s.repo.InsertDetails(ctx, details); err != nil {
			return fmt.Errorf("insert details: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.runAfter(ctx, domain.AfterCreate, sess)
	audit.Log(ctx, s.audit, audit.Entry{
		EntityType: EntityName,
		EntityID:   sess.ID,
		Action:     audit.ActionCreate,
		Changes: map[string]any{
			"number":        sess.Number,
			"name":          sess.Name,
			"warehouseId":   sess.WarehouseID,
			"totalProducts": sess.TotalProducts,
		},
	})

	logger.Info(ctx, "stocktake created",
		"id", sess.ID,
		"number", sess.Number,
		"total_products", sess.TotalProducts,
	)
	return sess, nil
}

// GetByID retrieves a session with its derived counters.
func (s *Service) GetByID(ctx context.Context, sessionID id.ID) (*Session, error) {
	return s.repo.GetByID(ctx, sessionID)
}

// List retrieves sessions; cancelled ones are hidden unless requested.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Session], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return domain.ListResult[*Session]{}, apperror.NewFieldValidation("status", "unknown status")
	}
	page := domain.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, filter)
}

// Delete removes an in-progress session and all its lines.
func (s *Service) Delete(ctx context.Context, sessionID id.ID) error {
	var sess *Session
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := sess.EnsureInProgress("delete"); err != nil {
			return err
		}
		return s.repo.Delete(ctx, sessionID)
	})
	if err != nil {
		return err
	}

	s.runAfter(ctx, domain.AfterDelete, sess)
	audit.Log(ctx, s.audit, audit.Entry{
		EntityType: EntityName,
		EntityID:   sessionID,
		Action:     audit.ActionDelete,
		Changes:    map[string]any{"number": sess.Number},
	})
	logger.Info(ctx, "stocktake deleted", "id", sessionID, "number", sess.Number)
	return nil
}

// Cancel abandons an in-progress session. Its lines stay for reference.
func (s *Service) Cancel(ctx context.Context, sessionID id.ID) (*Session, error) {
	var sess *Session
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		expected := sess.Version
		if err := sess.Cancel(s.now()); err != nil {
			return err
		}
		return s.repo.UpdateStatus(ctx, sess, expected)
	})
	if err != nil {
		return nil, err
	}

	s.runAfter(ctx, domain.AfterUpdate, sess)
	audit.Log(ctx, s.audit, audit.Entry{
		EntityType: EntityName,
		EntityID:   sess.ID,
		Action:     audit.ActionUpdate,
		Changes:    map[string]any{"status": sess.Status},
	})
	logger.Info(ctx, "stocktake cancelled", "id", sess.ID)
	return sess, nil
}

// GetDetails lists the lines of a session joined with product code and name.
func (s *Service) GetDetails(ctx context.Context, filter DetailFilter) (domain.ListResult[DetailView], error) {
	if _, err := s.repo.GetByID(ctx, filter.SessionID); err != nil {
		return domain.ListResult[DetailView]{}, err
	}
	page := domain.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.ListDetails(ctx, filter)
}

// UpdateCount captures (or un-captures) one line and recomputes its variance.
// Repeating a call with the same input is a no-op; concurrent writers on the
// same line resolve as last write wins.
func (s *Service) UpdateCount(ctx context.Context, sessionID, detailID id.ID, in UpdateCountInput) (*DetailView, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var (
		sess    *Session
		view    *DetailView
		changed bool
		before  map[string]any
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForShare(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := sess.EnsureInProgress("update count of"); err != nil {
			return err
		}

		view, err = s.repo.GetDetail(ctx, sessionID, detailID)
		if err != nil {
			return err
		}

		before = countState(&view.Detail)
		changed = view.SetCount(in, appctx.GetUserID(ctx), s.now())
		if !changed {
			return nil
		}
		return s.repo.UpdateDetailCount(ctx, &view.Detail)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.runAfter(ctx, domain.AfterUpdate, sess)
		audit.Log(ctx, s.audit, audit.Entry{
			EntityType: DetailEntityName,
			EntityID:   view.ID,
			Action:     audit.ActionUpdate,
			Changes: map[string]any{
				"sessionId": sessionID,
				"diff":      audit.Diff(before, countState(&view.Detail)),
			},
		})
	}
	return view, nil
}

// CanFinalize reports whether the session is open and every line is counted.
func (s *Service) CanFinalize(ctx context.Context, sessionID id.ID) (bool, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	stats, err := s.repo.Stats(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("session stats: %w", err)
	}
	return sess.CanFinalize(stats.Total, stats.Captured), nil
}

// Finalize freezes the count. Stock is not touched; see ApplyAdjustments.
// The transition is a conditional write, so a lost race or a failed write
// leaves the session in progress.
func (s *Service) Finalize(ctx context.Context, sessionID id.ID) (*Session, error) {
	var sess *Session
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		stats, err := s.repo.Stats(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("session stats: %w", err)
		}

		expected := sess.Version
		if err := sess.Finalize(stats.Total, stats.Captured, s.now()); err != nil {
			return err
		}
		return s.repo.UpdateStatus(ctx, sess, expected)
	})
	if err != nil {
		return nil, err
	}

	s.runAfter(ctx, domain.AfterFinalize, sess)
	audit.Log(ctx, s.audit, audit.Entry{
		EntityType: EntityName,
		EntityID:   sess.ID,
		Action:     audit.ActionFinalize,
		Changes:    map[string]any{"status": sess.Status, "finalizedAt": sess.FinalizedAt},
	})
	logger.Info(ctx, "stocktake finalized", "id", sess.ID, "number", sess.Number)
	return sess, nil
}

// runAfter runs post-commit hooks. The change is already durable, so a
// failing hook is logged and does not fail the operation.
func (s *Service) runAfter(ctx context.Context, event domain.HookEvent, sess *Session) {
	if err := s.hooks.Run(ctx, event, sess); err != nil {
		logger.Warn(ctx, "stocktake hook failed", "event", event, "id", sess.ID, "error", err)
	}
}

// readOnly runs fn in a read-only transaction when the manager supports
// one, so multi-query reads see a single snapshot.
func (s *Service) readOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if ro, ok := s.txManager.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

func scopeOf(warehouseID *id.ID) any {
	if warehouseID == nil {
		return "all"
	}
	return warehouseID.String()
}
