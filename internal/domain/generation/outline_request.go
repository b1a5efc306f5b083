package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutlineRequest is a submitted teaching outline. The text is immutable; all
// progress lives in the StatusRecord trail keyed by ID.
type OutlineRequest struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	OutlineText string    `gorm:"column:outline_text;type:text;not null" json:"outline_text"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}

func (OutlineRequest) TableName() string { return "outline_request" }

func (o *OutlineRequest) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
