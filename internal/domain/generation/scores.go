package generation

import "fmt"

// AgeRange is an inclusive [Min, Max] learner age range.
type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r AgeRange) String() string { return fmt.Sprintf("%d-%d", r.Min, r.Max) }

// ValidationScores is the provider's assessment of an outline. All numeric
// scores are in [0, 1].
type ValidationScores struct {
	SafetyScore         float64  `json:"safety_score"`
	SpecificityScore    float64  `json:"specificity_score"`
	MatchesTopicCatalog bool     `json:"matches_topic_catalog"`
	TargetAgeRange      AgeRange `json:"target_age_range"`
	Actionable          bool     `json:"actionable"`
	Requirements        []string `json:"requirements"`
	DetectedTopic       string   `json:"detected_topic"`
	DetectedDomains     []string `json:"detected_domains"`
}

// Feedback is the user-facing context handed to block generation.
type Feedback struct {
	Topic        string   `json:"topic"`
	AgeRange     AgeRange `json:"age_range"`
	Requirements []string `json:"requirements"`
	Domains      []string `json:"domains"`
}

// LessonContext is the context shared by every lesson of one outline.
type LessonContext struct {
	Topic      string   `json:"topic"`
	AgeRange   AgeRange `json:"age_range"`
	Complexity string   `json:"complexity"`
	Domains    []string `json:"domains"`
}

func FeedbackFromScores(s ValidationScores) Feedback {
	return Feedback{
		Topic:        s.DetectedTopic,
		AgeRange:     s.TargetAgeRange,
		Requirements: append([]string(nil), s.Requirements...),
		Domains:      append([]string(nil), s.DetectedDomains...),
	}
}

// LessonContextFromScores derives the shared lesson context. Complexity is
// banded on the upper bound of the age range.
func LessonContextFromScores(s ValidationScores) LessonContext {
	return LessonContext{
		Topic:      s.DetectedTopic,
		AgeRange:   s.TargetAgeRange,
		Complexity: ComplexityForAge(s.TargetAgeRange),
		Domains:    append([]string(nil), s.DetectedDomains...),
	}
}

func ComplexityForAge(r AgeRange) string {
	switch {
	case r.Max <= 8:
		return "beginner"
	case r.Max <= 13:
		return "intermediate"
	default:
		return "advanced"
	}
}
