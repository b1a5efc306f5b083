package generation

// Status is one entry of the outline or lesson status vocabulary. The two
// vocabularies share "validating" and the terminal names.
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusValidating        Status = "validating"
	StatusValidated         Status = "validated"
	StatusBlocksGenerating  Status = "blocks_generating"
	StatusBlocksGenerated   Status = "blocks_generated"
	StatusLessonsGenerating Status = "lessons_generating"
	StatusLessonsGenerated  Status = "lessons_generated"
	StatusLessonsValidating Status = "lessons_validating"
	StatusLessonsValidated  Status = "lessons_validated"

	StatusGenerated Status = "generated"
	StatusCompiling Status = "compiling"

	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
)

var OutlineStatuses = []Status{
	StatusSubmitted,
	StatusValidating,
	StatusValidated,
	StatusBlocksGenerating,
	StatusBlocksGenerated,
	StatusLessonsGenerating,
	StatusLessonsGenerated,
	StatusLessonsValidating,
	StatusLessonsValidated,
	StatusCompleted,
	StatusFailed,
	StatusError,
}

var LessonStatuses = []Status{
	StatusGenerated,
	StatusValidating,
	StatusCompiling,
	StatusCompleted,
	StatusFailed,
	StatusError,
}

var TerminalStatuses = []Status{StatusCompleted, StatusFailed, StatusError}

func (s Status) String() string { return string(s) }

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

func (s Status) ValidFor(entity EntityType) bool {
	var vocab []Status
	switch entity {
	case EntityOutlineRequest:
		vocab = OutlineStatuses
	case EntityLessonUnit:
		vocab = LessonStatuses
	default:
		return false
	}
	for _, v := range vocab {
		if v == s {
			return true
		}
	}
	return false
}

type EntityType string

const (
	EntityOutlineRequest EntityType = "outline_request"
	EntityLessonUnit     EntityType = "lesson_unit"
)
