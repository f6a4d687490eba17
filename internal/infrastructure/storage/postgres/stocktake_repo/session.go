// Package stocktake_repo provides the PostgreSQL implementation of the
// stocktake repository.
package stocktake_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/domain"
	"inventario/internal/domain/stocktake"
	"inventario/internal/infrastructure/storage/postgres"
)

const (
	sessionsTable = "doc_stocktake_sessions"
	detailsTable  = "doc_stocktake_details"
	productsTable = "cat_products"
)

const totalAdjustmentsExpr = "(SELECT COUNT(*) FROM " + detailsTable +
	" ad WHERE ad.session_id = s.id AND ad.adjusted) AS total_adjustments"

// SessionRepo implements stocktake.Repository.
type SessionRepo struct {
	txManager   *postgres.TxManager
	builder     squirrel.StatementBuilderType
	sessionCols []string
	detailCols  []string
}

var _ stocktake.Repository = (*SessionRepo)(nil)

// NewSessionRepo creates a new stocktake repository.
func NewSessionRepo(txManager *postgres.TxManager) *SessionRepo {
	return &SessionRepo{
		txManager:   txManager,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		sessionCols: postgres.Without(postgres.ExtractDBColumns[stocktake.Session](), "total_adjustments"),
		detailCols:  postgres.ExtractDBColumns[stocktake.Detail](),
	}
}

func (r *SessionRepo) sessionSelect() squirrel.SelectBuilder {
	cols := append(postgres.Qualify("s", r.sessionCols), totalAdjustmentsExpr)
	return r.builder.Select(cols...).From(sessionsTable + " s")
}

func (r *SessionRepo) detailSelect() squirrel.SelectBuilder {
	cols := append(postgres.Qualify("d", r.detailCols), "p.code AS product_code", "p.name AS product_name")
	return r.builder.Select(cols...).
		From(detailsTable + " d").
		Join(productsTable + " p ON p.id = d.product_id")
}

func (r *SessionRepo) Create(ctx context.Context, s *stocktake.Session) error {
	sql, args, err := r.builder.
		Insert(sessionsTable).
		SetMap(postgres.PickColumns(postgres.StructToMap(s), r.sessionCols)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", sessionsTable, err)
	}
	return nil
}

func (r *SessionRepo) InsertDetails(ctx context.Context, details []stocktake.Detail) error {
	rows := make([][]any, 0, len(details))
	for i := range details {
		m := postgres.StructToMap(&details[i])
		row := make([]any, len(r.detailCols))
		for j, col := range r.detailCols {
			row[j] = m[col]
		}
		rows = append(rows, row)
	}

	inserter := postgres.NewBatchInserter(r.txManager)
	if _, err := inserter.CopyFromSlice(ctx, detailsTable, r.detailCols, rows); err != nil {
		return fmt.Errorf("copy details: %w", err)
	}
	return nil
}

func (r *SessionRepo) GetByID(ctx context.Context, sessionID id.ID) (*stocktake.Session, error) {
	return r.get(ctx, r.sessionSelect().Where(squirrel.Eq{"s.id": sessionID}), sessionID)
}

func (r *SessionRepo) GetForUpdate(ctx context.Context, sessionID id.ID) (*stocktake.Session, error) {
	return r.get(ctx, r.lockedSelect(sessionID, "FOR UPDATE OF s"), sessionID)
}

func (r *SessionRepo) GetForShare(ctx context.Context, sessionID id.ID) (*stocktake.Session, error) {
	return r.get(ctx, r.lockedSelect(sessionID, "FOR SHARE OF s"), sessionID)
}

func (r *SessionRepo) lockedSelect(sessionID id.ID, lock string) squirrel.SelectBuilder {
	return r.sessionSelect().
		Where(squirrel.Eq{"s.id": sessionID}).
		Suffix(lock)
}

func (r *SessionRepo) get(ctx context.Context, q squirrel.SelectBuilder, sessionID id.ID) (*stocktake.Session, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s stocktake.Session
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(stocktake.EntityName, sessionID.String())
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// listQuery applies filters without ordering or pagination.
func (r *SessionRepo) listQuery(filter stocktake.ListFilter) squirrel.SelectBuilder {
	q := r.sessionSelect()

	switch {
	case filter.Status != nil:
		q = q.Where(squirrel.Eq{"s.status": *filter.Status})
	case !filter.IncludeCancelled:
		q = q.Where(squirrel.NotEq{"s.status": stocktake.StatusCancelled})
	}

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"s.warehouse_id": *filter.WarehouseID})
	}

	if filter.Search != "" {
		pattern := postgres.ContainsPattern(filter.Search)
		q = q.Where(squirrel.Or{
			squirrel.ILike{"s.name": pattern},
			squirrel.ILike{"s.description": pattern},
			squirrel.ILike{"s.created_by_name": pattern},
		})
	}
	return q
}

func (r *SessionRepo) List(ctx context.Context, filter stocktake.ListFilter) (domain.ListResult[*stocktake.Session], error) {
	result := domain.ListResult[*stocktake.Session]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.listQuery(filter)
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy("s.started_at DESC", "s.id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list sessions: %w", err)
	}
	return result, nil
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, s *stocktake.Session, expectedVersion int) error {
	sql, args, err := r.builder.
		Update(sessionsTable).
		Set("status", s.Status).
		Set("finalized_at", s.FinalizedAt).
		Set("cancelled_at", s.CancelledAt).
		Set("updated_at", s.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{
			"id":      s.ID,
			"status":  stocktake.StatusInProgress,
			"version": expectedVersion,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", sessionsTable, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(stocktake.EntityName, s.ID.String())
	}

	s.Version = expectedVersion + 1
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID id.ID) error {
	sql, args, err := r.builder.
		Delete(sessionsTable).
		Where(squirrel.Eq{"id": sessionID, "status": stocktake.StatusInProgress}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", sessionsTable, err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, sessionID); err != nil {
			return err
		}
		return apperror.NewConcurrentModification(stocktake.EntityName, sessionID.String())
	}
	return nil
}

func (r *SessionRepo) GetDetail(ctx context.Context, sessionID, detailID id.ID) (*stocktake.DetailView, error) {
	sql, args, err := r.detailSelect().
		Where(squirrel.Eq{"d.id": detailID, "d.session_id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var v stocktake.DetailView
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &v, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(stocktake.DetailEntityName, detailID.String())
		}
		return nil, fmt.Errorf("get detail: %w", err)
	}
	return &v, nil
}

func (r *SessionRepo) detailListQuery(filter stocktake.DetailFilter) squirrel.SelectBuilder {
	q := r.detailSelect().Where(squirrel.Eq{"d.session_id": filter.SessionID})
	if filter.Pending != nil {
		if *filter.Pending {
			q = q.Where(squirrel.Eq{"d.counted_quantity": nil})
		} else {
			q = q.Where(squirrel.NotEq{"d.counted_quantity": nil})
		}
	}
	return q
}

func (r *SessionRepo) ListDetails(ctx context.Context, filter stocktake.DetailFilter) (domain.ListResult[stocktake.DetailView], error) {
	result := domain.ListResult[stocktake.DetailView]{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.detailListQuery(filter)
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy("d.line_no")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list details: %w", err)
	}
	return result, nil
}

func (r *SessionRepo) AllDetails(ctx context.Context, sessionID id.ID) ([]stocktake.DetailView, error) {
	sql, args, err := r.detailSelect().
		Where(squirrel.Eq{"d.session_id": sessionID}).
		OrderBy("d.line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []stocktake.DetailView
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("all details: %w", err)
	}
	return out, nil
}

// UpdateDetailCount writes the capture only while the owning session is
// still in_progress. Callers hold the session FOR SHARE so the write cannot
// interleave with a finalize.
func (r *SessionRepo) UpdateDetailCount(ctx context.Context, d *stocktake.Detail) error {
	sql, args, err := r.updateCountQuery(d).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", detailsTable, err)
	}
	if result.RowsAffected() == 0 {
		s, err := r.GetByID(ctx, d.SessionID)
		if err != nil {
			return err
		}
		return apperror.NewInvalidState(stocktake.EntityName, string(s.Status), "update count of")
	}
	return nil
}

func (r *SessionRepo) updateCountQuery(d *stocktake.Detail) squirrel.UpdateBuilder {
	return r.builder.
		Update(detailsTable).
		Set("counted_quantity", d.CountedQuantity).
		Set("variance", d.Variance).
		Set("notes", d.Notes).
		Set("counted_at", d.CountedAt).
		Set("counted_by", d.CountedBy).
		Where(squirrel.Eq{"id": d.ID, "session_id": d.SessionID}).
		Where(squirrel.Expr(
			"EXISTS (SELECT 1 FROM "+sessionsTable+" s WHERE s.id = session_id AND s.status = ?)",
			stocktake.StatusInProgress,
		))
}

func (r *SessionRepo) statsQuery(sessionID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(
		"COUNT(*) AS total",
		"COUNT(*) FILTER (WHERE variance IS NOT NULL) AS captured",
		"COUNT(*) FILTER (WHERE adjusted) AS adjusted",
		"COUNT(*) FILTER (WHERE variance > 0) AS surplus",
		"COUNT(*) FILTER (WHERE variance < 0) AS shortage",
		`COUNT(*) FILTER (WHERE variance = 0) AS "match"`,
		"COALESCE(SUM(variance), 0) AS net_variance",
		"COALESCE(SUM(variance) FILTER (WHERE variance > 0), 0) AS surplus_units",
		"COALESCE(-SUM(variance) FILTER (WHERE variance < 0), 0) AS shortage_units",
		"COALESCE(SUM(variance * unit_cost), 0) AS valued_delta",
	).
		From(detailsTable).
		Where(squirrel.Eq{"session_id": sessionID})
}

func (r *SessionRepo) Stats(ctx context.Context, sessionID id.ID) (stocktake.DetailStats, error) {
	var st stocktake.DetailStats

	sql, args, err := r.statsQuery(sessionID).ToSql()
	if err != nil {
		return st, fmt.Errorf("build stats query: %w", err)
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &st, sql, args...); err != nil {
		return st, fmt.Errorf("detail stats: %w", err)
	}
	return st, nil
}

func (r *SessionRepo) PendingAdjustments(ctx context.Context, sessionID id.ID) ([]stocktake.Detail, error) {
	sql, args, err := r.builder.
		Select(r.detailCols...).
		From(detailsTable).
		Where(squirrel.Eq{"session_id": sessionID, "adjusted": false}).
		Where(squirrel.NotEq{"variance": nil}).
		Where(squirrel.NotEq{"variance": 0}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []stocktake.Detail
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("pending adjustments: %w", err)
	}
	return out, nil
}

func (r *SessionRepo) MarkAdjusted(ctx context.Context, detailID id.ID, at time.Time) (bool, error) {
	sql, args, err := r.builder.
		Update(detailsTable).
		Set("adjusted", true).
		Set("adjusted_at", at).
		Where(squirrel.Eq{"id": detailID, "adjusted": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("mark adjusted: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
