// Package decision turns provider scores into an accept/reject outcome. It is
// pure: the same scores and thresholds always produce the same Decision.
package decision

import (
	"fmt"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/policy"
)

type Code string

const (
	CodeSafetySevere    Code = "safety_severe"
	CodeSafetyLow       Code = "safety_low"
	CodeTooVague        Code = "too_vague"
	CodeNotActionable   Code = "not_actionable"
	CodeAgeOutOfBounds  Code = "age_out_of_bounds"
	CodeAgeRangeInverse Code = "age_range_inverted"
)

type Decision struct {
	Accepted bool     `json:"accepted"`
	Reasons  []string `json:"reasons"`
	Codes    []Code   `json:"codes"`
}

func (d *Decision) reject(code Code, reason string) {
	d.Codes = append(d.Codes, code)
	d.Reasons = append(d.Reasons, reason)
}

// Decide evaluates every criterion and reports all failures at once.
func Decide(scores types.ValidationScores, t policy.Thresholds) Decision {
	d := Decision{Reasons: []string{}, Codes: []Code{}}

	switch {
	case scores.SafetyScore < t.SafetySevereFloor:
		d.reject(CodeSafetySevere, fmt.Sprintf(
			"safety score %.2f is far below the minimum of %.2f; the outline was flagged as unsafe (high severity)",
			scores.SafetyScore, t.SafetyFloor))
	case scores.SafetyScore < t.SafetyFloor:
		d.reject(CodeSafetyLow, fmt.Sprintf(
			"safety score %.2f is below the minimum of %.2f; the outline could not be confirmed as safe (low confidence)",
			scores.SafetyScore, t.SafetyFloor))
	}

	if scores.SpecificityScore < t.SpecificityFloor {
		d.reject(CodeTooVague, fmt.Sprintf(
			"specificity score %.2f is below the minimum of %.2f; the outline is too vague to teach from",
			scores.SpecificityScore, t.SpecificityFloor))
	}

	if !scores.Actionable {
		d.reject(CodeNotActionable, "the outline does not describe an actionable lesson")
	}

	r := scores.TargetAgeRange
	switch {
	case r.Min > r.Max:
		d.reject(CodeAgeRangeInverse, fmt.Sprintf("target age range %s is inverted", r))
	case r.Min < t.MinAge || r.Max > t.MaxAge:
		d.reject(CodeAgeOutOfBounds, fmt.Sprintf(
			"target age range %s is outside the supported range %d-%d", r, t.MinAge, t.MaxAge))
	}

	d.Accepted = len(d.Reasons) == 0
	return d
}
