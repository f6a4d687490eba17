package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "inventario/internal/core/context"
	"inventario/internal/core/id"
	"inventario/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// defaultCompressThreshold is the payload size above which changes are stored
// zstd-compressed. An adjust entry lists every applied and failed line, so a
// run over more than a few dozen products exceeds it.
const defaultCompressThreshold = 8 * 1024

// AuditEntry is a row of sys_audit.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            audit.Action    `db:"action"`
	UserID            *string         `db:"user_id"`
	UserName          *string         `db:"user_name"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService stores audit entries in sys_audit.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var (
	_ audit.Recorder      = (*AuditService)(nil)
	_ audit.HistoryReader = (*AuditService)(nil)
)

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Record implements audit.Recorder.
func (s *AuditService) Record(ctx context.Context, e audit.Entry) error {
	entry, err := s.newEntry(ctx, e, time.Now().UTC())
	if err != nil {
		return err
	}

	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("sys_audit").
		SetMap(StructToMap(entry)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// newEntry converts a domain entry into a row, attributing it to the
// current user and compressing oversized payloads.
func (s *AuditService) newEntry(ctx context.Context, e audit.Entry, now time.Time) (AuditEntry, error) {
	entry := AuditEntry{
		ID:              id.New(),
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		Action:          e.Action,
		CompressionAlgo: CompressionNone,
		CreatedAt:       now,
	}

	if user := appctx.GetUser(ctx); user != nil {
		uid, name := user.UserID, appctx.GetUserName(ctx)
		entry.UserID, entry.UserName = &uid, &name
	}

	if len(e.Changes) > 0 {
		raw, err := json.Marshal(e.Changes)
		if err != nil {
			return AuditEntry{}, fmt.Errorf("marshal changes: %w", err)
		}
		entry.Changes = raw
	}

	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}
	return entry, nil
}

// History implements audit.HistoryReader. Compressed payloads are expanded.
func (s *AuditService) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.HistoryEntry, error) {
	sql, args, err := s.historyQuery(entityType, entityID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]audit.HistoryEntry, 0, len(rows))
	for i := range rows {
		h, err := s.toHistory(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *AuditService) historyQuery(entityType string, entityID id.ID, limit int) squirrel.SelectBuilder {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(ExtractDBColumns[AuditEntry]()...).
		From("sys_audit").
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
}

func (s *AuditService) toHistory(e *AuditEntry) (audit.HistoryEntry, error) {
	if err := s.expand(e); err != nil {
		return audit.HistoryEntry{}, err
	}
	h := audit.HistoryEntry{
		ID:        e.ID,
		Action:    e.Action,
		UserID:    e.UserID,
		UserName:  e.UserName,
		CreatedAt: e.CreatedAt,
	}
	if len(e.Changes) > 0 {
		if err := json.Unmarshal(e.Changes, &h.Changes); err != nil {
			return audit.HistoryEntry{}, fmt.Errorf("decode changes of %s: %w", e.ID, err)
		}
	}
	return h, nil
}

func (s *AuditService) expand(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.ChangesCompressed) == 0 {
		return nil
	}
	decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress changes: %w", err)
	}
	e.Changes = decompressed
	e.ChangesCompressed = nil
	return nil
}
