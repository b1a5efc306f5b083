package generation

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// Repos bundles the generation repositories.
type Repos struct {
	Outlines OutlineRequestRepo
	Statuses StatusRecordRepo
	Lessons  LessonUnitRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) Repos {
	return Repos{
		Outlines: NewOutlineRequestRepo(db, baseLog),
		Statuses: NewStatusRecordRepo(db, baseLog),
		Lessons:  NewLessonUnitRepo(db, baseLog),
	}
}
