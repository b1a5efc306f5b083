package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonUnit is the mutable per-lesson record owned by one Lesson Unit
// Workflow. Its status lives in the StatusRecord trail.
type LessonUnit struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OutlineRequestID       uuid.UUID      `gorm:"type:uuid;column:outline_request_id;not null;uniqueIndex:idx_lesson_unit_outline_index,priority:1" json:"outline_request_id"`
	Index                  int            `gorm:"column:lesson_index;not null;uniqueIndex:idx_lesson_unit_outline_index,priority:2" json:"index"`
	Title                  string         `gorm:"column:title;not null" json:"title"`
	Blocks                 datatypes.JSON `gorm:"column:blocks;not null" json:"blocks"`
	GeneratedSource        string         `gorm:"column:generated_source;type:text" json:"generated_source,omitempty"`
	SourceAttempt          int            `gorm:"column:source_attempt;not null;default:0" json:"source_attempt"`
	CompiledArtifact       *string        `gorm:"column:compiled_artifact;type:text" json:"compiled_artifact,omitempty"`
	ValidationAttemptCount int            `gorm:"column:validation_attempt_count;not null;default:0" json:"validation_attempt_count"`
	CreatedAt              time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updated_at"`
}

func (LessonUnit) TableName() string { return "lesson_unit" }

func (u *LessonUnit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Lesson rebuilds the typed lesson carried by the unit.
func (u *LessonUnit) Lesson() (Lesson, error) {
	var blocks Blocks
	if len(u.Blocks) > 0 {
		if err := json.Unmarshal(u.Blocks, &blocks); err != nil {
			return Lesson{}, err
		}
	}
	return Lesson{Title: u.Title, Blocks: blocks}, nil
}
