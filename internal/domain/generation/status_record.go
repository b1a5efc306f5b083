package generation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatusRecord is the append-only audit trail for outlines and lesson units.
// Rows are never updated; the current status of an entity is the row with the
// highest Seq.
type StatusRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType EntityType     `gorm:"column:entity_type;not null;index" json:"entity_type"`
	EntityID   uuid.UUID      `gorm:"type:uuid;column:entity_id;not null;uniqueIndex:idx_status_record_entity_seq,priority:1" json:"entity_id"`
	Seq        int64          `gorm:"column:seq;not null;uniqueIndex:idx_status_record_entity_seq,priority:2" json:"seq"`
	Status     Status         `gorm:"column:status;not null;index" json:"status"`
	Metadata   datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (StatusRecord) TableName() string { return "status_record" }

func (r *StatusRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// DecodeMetadata unmarshals the record metadata into dst. Empty metadata
// leaves dst untouched.
func (r *StatusRecord) DecodeMetadata(dst any) error {
	if r == nil || len(r.Metadata) == 0 || string(r.Metadata) == "null" {
		return nil
	}
	return json.Unmarshal(r.Metadata, dst)
}
