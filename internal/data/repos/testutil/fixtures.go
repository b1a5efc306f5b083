package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

func SeedOutline(tb testing.TB, ctx context.Context, tx *gorm.DB, text string) *types.OutlineRequest {
	tb.Helper()
	o := &types.OutlineRequest{
		ID:          uuid.New(),
		Title:       "outline",
		OutlineText: text,
	}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed outline: %v", err)
	}
	return o
}

func SeedLessonUnit(tb testing.TB, ctx context.Context, tx *gorm.DB, outlineID uuid.UUID, index int, lesson types.Lesson) *types.LessonUnit {
	tb.Helper()
	raw, err := json.Marshal(lesson.Blocks)
	if err != nil {
		tb.Fatalf("marshal blocks: %v", err)
	}
	u := &types.LessonUnit{
		ID:               uuid.New(),
		OutlineRequestID: outlineID,
		Index:            index,
		Title:            lesson.Title,
		Blocks:           datatypes.JSON(raw),
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed lesson unit: %v", err)
	}
	return u
}
