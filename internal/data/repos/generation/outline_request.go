package generation

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type OutlineRequestRepo interface {
	Create(dbc dbctx.Context, req *types.OutlineRequest) (*types.OutlineRequest, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.OutlineRequest, error)
	List(dbc dbctx.Context, limit int) ([]*types.OutlineRequest, error)
	// ListUnfinished returns requests with no terminal status record, oldest first.
	ListUnfinished(dbc dbctx.Context, limit int) ([]*types.OutlineRequest, error)
}

type outlineRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutlineRequestRepo(db *gorm.DB, baseLog *logger.Logger) OutlineRequestRepo {
	return &outlineRequestRepo{
		db:  db,
		log: baseLog.With("repo", "OutlineRequestRepo"),
	}
}

func (r *outlineRequestRepo) Create(dbc dbctx.Context, req *types.OutlineRequest) (*types.OutlineRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if req == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// GetByID returns nil, nil when the request does not exist.
func (r *outlineRequestRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.OutlineRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.OutlineRequest
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *outlineRequestRepo) List(dbc dbctx.Context, limit int) ([]*types.OutlineRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.OutlineRequest
	if err := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outlineRequestRepo) ListUnfinished(dbc dbctx.Context, limit int) ([]*types.OutlineRequest, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	terminal := transaction.Model(&types.StatusRecord{}).
		Select("1").
		Where("status_record.entity_id = outline_request.id AND status_record.status IN ?", types.TerminalStatuses)
	var out []*types.OutlineRequest
	if err := transaction.WithContext(dbc.Ctx).
		Where("NOT EXISTS (?)", terminal).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
