package generation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type LessonUnitRepo interface {
	// CreateOrGet inserts the unit or returns the existing one with the same
	// (outline_request_id, lesson_index).
	CreateOrGet(dbc dbctx.Context, unit *types.LessonUnit) (*types.LessonUnit, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LessonUnit, error)
	ListByOutline(dbc dbctx.Context, outlineRequestID uuid.UUID) ([]*types.LessonUnit, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type lessonUnitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonUnitRepo(db *gorm.DB, baseLog *logger.Logger) LessonUnitRepo {
	return &lessonUnitRepo{
		db:  db,
		log: baseLog.With("repo", "LessonUnitRepo"),
	}
}

func (r *lessonUnitRepo) CreateOrGet(dbc dbctx.Context, unit *types.LessonUnit) (*types.LessonUnit, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if unit == nil || unit.OutlineRequestID == uuid.Nil {
		return nil, apperr.ErrInvalidArgument
	}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outline_request_id"}, {Name: "lesson_index"}},
			DoNothing: true,
		}).
		Create(unit).Error; err != nil {
		return nil, err
	}
	var out types.LessonUnit
	if err := transaction.WithContext(dbc.Ctx).
		Where("outline_request_id = ? AND lesson_index = ?", unit.OutlineRequestID, unit.Index).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *lessonUnitRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.LessonUnit, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.LessonUnit
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *lessonUnitRepo) ListByOutline(dbc dbctx.Context, outlineRequestID uuid.UUID) ([]*types.LessonUnit, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LessonUnit
	if err := transaction.WithContext(dbc.Ctx).
		Where("outline_request_id = ?", outlineRequestID).
		Order("lesson_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lessonUnitRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.LessonUnit{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
