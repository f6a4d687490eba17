package stocktake

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"inventario/internal/core/apperror"
	"inventario/internal/core/id"
	"inventario/internal/domain/audit"
	"inventario/internal/domain/catalogs/product"
	"inventario/pkg/logger"
)

var tracer = otel.Tracer("inventario/stocktake")

// AdjustmentSuccess is a line whose variance reached live stock.
type AdjustmentSuccess struct {
	DetailID    id.ID `json:"detailId"`
	ProductID   id.ID `json:"productId"`
	Delta       int64 `json:"delta"`
	NewQuantity int64 `json:"newQuantity"`
}

// AdjustmentFailure is a line whose adjustment was rolled back.
type AdjustmentFailure struct {
	DetailID  id.ID  `json:"detailId"`
	ProductID id.ID  `json:"productId"`
	Delta     int64  `json:"delta"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

// AdjustmentResult summarizes one ApplyAdjustments run.
type AdjustmentResult struct {
	SessionID id.ID               `json:"sessionId"`
	Succeeded []AdjustmentSuccess `json:"succeeded"`
	Failed    []AdjustmentFailure `json:"failed"`
	// Skipped counts lines another run adjusted in the meantime.
	Skipped          int `json:"skipped"`
	TotalAdjustments int `json:"totalAdjustments"`
}

// HasFailures reports whether any line failed.
func (r *AdjustmentResult) HasFailures() bool {
	return len(r.Failed) > 0
}

// ApplyAdjustments commits the variance of every unadjusted, non-zero line
// of a finalized session into live stock. Each line is its own transaction:
// a failing line is reported and the rest still run. Already adjusted lines
// are never applied twice, so the call is safe to retry. Zero-variance lines
// are left unadjusted.
func (s *Service) ApplyAdjustments(ctx context.Context, sessionID id.ID) (*AdjustmentResult, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusFinalized {
		return nil, apperror.NewInvalidState(EntityName, string(sess.Status), "apply adjustments to")
	}

	result := &AdjustmentResult{
		SessionID: sessionID,
		Succeeded: []AdjustmentSuccess{},
		Failed:    []AdjustmentFailure{},
	}

	err = s.locker.WithLock(ctx, AdjustmentLockKey(sessionID), func(ctx context.Context) error {
		pending, err := s.repo.PendingAdjustments(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list pending adjustments: %w", err)
		}
		for _, d := range pending {
			s.applyOne(ctx, sess, d, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats, err := s.repo.Stats(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	result.TotalAdjustments = stats.Adjusted

	if len(result.Succeeded) > 0 || len(result.Failed) > 0 {
		audit.Log(ctx, s.audit, audit.Entry{
			EntityType: EntityName,
			EntityID:   sessionID,
			Action:     audit.ActionAdjust,
			Changes: map[string]any{
				"succeeded": result.Succeeded,
				"failed":    result.Failed,
				"skipped":   result.Skipped,
			},
		})
	}

	logger.Info(ctx, "stocktake adjustments applied",
		"id", sessionID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *Service) applyOne(ctx context.Context, sess *Session, d Detail, result *AdjustmentResult) {
	ctx, span := tracer.Start(ctx, "stocktake.adjust_line")
	defer span.End()
	span.SetAttributes(
		attribute.String("stocktake.id", sess.ID.String()),
		attribute.String("product.id", d.ProductID.String()),
		attribute.Int64("delta", *d.Variance),
	)

	var (
		newQty  int64
		skipped bool
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		marked, err := s.repo.MarkAdjusted(ctx, d.ID, s.now())
		if err != nil {
			return fmt.Errorf("mark adjusted: %w", err)
		}
		if !marked {
			skipped = true
			return nil
		}

		newQty, err = s.stock.AdjustQuantity(ctx, d.ProductID, *d.Variance, product.MovementRef{
			RecorderType: EntityName,
			RecorderID:   sess.ID,
			LineNo:       d.LineNo,
		})
		return err
	})

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "adjustment failed")

		code := apperror.CodeInternal
		if appErr, ok := apperror.AsAppError(err); ok {
			code = appErr.Code
		}
		logger.Warn(ctx, "stocktake adjustment failed",
			"id", sess.ID,
			"detail_id", d.ID,
			"product_id", d.ProductID,
			"error", err,
		)
		result.Failed = append(result.Failed, AdjustmentFailure{
			DetailID:  d.ID,
			ProductID: d.ProductID,
			Delta:     *d.Variance,
			Code:      code,
			Error:     err.Error(),
		})
	case skipped:
		result.Skipped++
	default:
		result.Succeeded = append(result.Succeeded, AdjustmentSuccess{
			DetailID:    d.ID,
			ProductID:   d.ProductID,
			Delta:       *d.Variance,
			NewQuantity: newQty,
		})
	}
}
