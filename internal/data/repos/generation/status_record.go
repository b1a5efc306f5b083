package generation

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// StatusRecordRepo is the append-only status ledger. There is no update or
// delete method on purpose.
type StatusRecordRepo interface {
	Append(dbc dbctx.Context, rec *types.StatusRecord) (*types.StatusRecord, error)
	Latest(dbc dbctx.Context, entityID uuid.UUID) (*types.StatusRecord, error)
	LatestWithStatus(dbc dbctx.Context, entityID uuid.UUID, status types.Status) (*types.StatusRecord, error)
	LatestForEntities(dbc dbctx.Context, entityIDs []uuid.UUID) (map[uuid.UUID]*types.StatusRecord, error)
	CountWithStatus(dbc dbctx.Context, entityID uuid.UUID, status types.Status) (int, error)
	ListByEntity(dbc dbctx.Context, entityID uuid.UUID) ([]*types.StatusRecord, error)
}

type statusRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatusRecordRepo(db *gorm.DB, baseLog *logger.Logger) StatusRecordRepo {
	return &statusRecordRepo{
		db:  db,
		log: baseLog.With("repo", "StatusRecordRepo"),
	}
}

const appendSeqAttempts = 3

// Append assigns the next per-entity sequence number and inserts the record.
// A second terminal record for the same entity yields ErrDuplicateTerminal.
func (r *statusRecordRepo) Append(dbc dbctx.Context, rec *types.StatusRecord) (*types.StatusRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if rec == nil || rec.EntityID == uuid.Nil || rec.Status == "" {
		return nil, apperr.ErrInvalidArgument
	}
	var lastErr error
	for attempt := 0; attempt < appendSeqAttempts; attempt++ {
		err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
			if rec.Status.IsTerminal() {
				var terminal int64
				if err := tx.Model(&types.StatusRecord{}).
					Where("entity_id = ? AND status IN ?", rec.EntityID, types.TerminalStatuses).
					Count(&terminal).Error; err != nil {
					return err
				}
				if terminal > 0 {
					return apperr.ErrDuplicateTerminal
				}
			}
			var maxSeq int64
			if err := tx.Model(&types.StatusRecord{}).
				Where("entity_id = ?", rec.EntityID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&maxSeq).Error; err != nil {
				return err
			}
			rec.ID = uuid.Nil
			rec.Seq = maxSeq + 1
			return tx.Create(rec).Error
		})
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, apperr.ErrDuplicateTerminal) {
			return nil, err
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		if rec.Status.IsTerminal() {
			// Lost a race with another terminal append.
			if latest, lerr := r.Latest(dbc, rec.EntityID); lerr == nil && latest != nil && latest.Status.IsTerminal() {
				return nil, apperr.ErrDuplicateTerminal
			}
		}
		lastErr = err
		r.log.Warn("status append seq collision, retrying", "entity_id", rec.EntityID, "status", rec.Status, "attempt", attempt+1)
	}
	return nil, lastErr
}

// Latest returns nil, nil when the entity has no records.
func (r *statusRecordRepo) Latest(dbc dbctx.Context, entityID uuid.UUID) (*types.StatusRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if entityID == uuid.Nil {
		return nil, nil
	}
	var rows []*types.StatusRecord
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_id = ?", entityID).
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *statusRecordRepo) LatestWithStatus(dbc dbctx.Context, entityID uuid.UUID, status types.Status) (*types.StatusRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if entityID == uuid.Nil || status == "" {
		return nil, nil
	}
	var rows []*types.StatusRecord
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_id = ? AND status = ?", entityID, status).
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *statusRecordRepo) LatestForEntities(dbc dbctx.Context, entityIDs []uuid.UUID) (map[uuid.UUID]*types.StatusRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]*types.StatusRecord, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}
	var rows []*types.StatusRecord
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_id IN ?", entityIDs).
		Order("entity_id ASC, seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.EntityID] = row
	}
	return out, nil
}

func (r *statusRecordRepo) CountWithStatus(dbc dbctx.Context, entityID uuid.UUID, status types.Status) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.StatusRecord{}).
		Where("entity_id = ? AND status = ?", entityID, status).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *statusRecordRepo) ListByEntity(dbc dbctx.Context, entityID uuid.UUID) ([]*types.StatusRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StatusRecord
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_id = ?", entityID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
