package decision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/policy"
)

func goodScores() types.ValidationScores {
	return types.ValidationScores{
		SafetyScore:      0.95,
		SpecificityScore: 0.85,
		Actionable:       true,
		TargetAgeRange:   types.AgeRange{Min: 5, Max: 6},
		DetectedTopic:    "primary colors",
	}
}

func TestDecideAcceptsGoodScores(t *testing.T) {
	d := Decide(goodScores(), policy.Default().Thresholds)
	assert.True(t, d.Accepted)
	assert.Empty(t, d.Reasons)
	assert.Empty(t, d.Codes)
}

func TestDecideRejectsAnySafetyBelowFloor(t *testing.T) {
	th := policy.Default().Thresholds
	for s := 0.0; s < th.SafetyFloor; s += 0.05 {
		scores := goodScores()
		scores.SafetyScore = s
		d := Decide(scores, th)
		require.False(t, d.Accepted, "safety=%.2f", s)
		require.NotEmpty(t, d.Reasons)
		assert.True(t, strings.Contains(d.Reasons[0], "safety"), "reason %q", d.Reasons[0])
	}
}

func TestDecideSafetySeverity(t *testing.T) {
	th := policy.Default().Thresholds

	scores := goodScores()
	scores.SafetyScore = 0.1
	assert.Equal(t, []Code{CodeSafetySevere}, Decide(scores, th).Codes)

	scores.SafetyScore = 0.6
	assert.Equal(t, []Code{CodeSafetyLow}, Decide(scores, th).Codes)
}

func TestDecideAccumulatesReasons(t *testing.T) {
	scores := types.ValidationScores{
		SafetyScore:      0.5,
		SpecificityScore: 0.1,
		Actionable:       false,
		TargetAgeRange:   types.AgeRange{Min: 1, Max: 40},
	}
	d := Decide(scores, policy.Default().Thresholds)
	assert.False(t, d.Accepted)
	assert.Equal(t, []Code{CodeSafetyLow, CodeTooVague, CodeNotActionable, CodeAgeOutOfBounds}, d.Codes)
	assert.Len(t, d.Reasons, 4)
}

func TestDecideAgeRange(t *testing.T) {
	th := policy.Default().Thresholds
	cases := []struct {
		name string
		r    types.AgeRange
		want []Code
	}{
		{"inside", types.AgeRange{Min: 8, Max: 10}, []Code{}},
		{"at bounds", types.AgeRange{Min: th.MinAge, Max: th.MaxAge}, []Code{}},
		{"too young", types.AgeRange{Min: th.MinAge - 1, Max: 6}, []Code{CodeAgeOutOfBounds}},
		{"too old", types.AgeRange{Min: 10, Max: th.MaxAge + 1}, []Code{CodeAgeOutOfBounds}},
		{"inverted", types.AgeRange{Min: 9, Max: 7}, []Code{CodeAgeRangeInverse}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scores := goodScores()
			scores.TargetAgeRange = tc.r
			assert.Equal(t, tc.want, Decide(scores, th).Codes)
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	scores := goodScores()
	scores.SpecificityScore = 0.2
	th := policy.Default().Thresholds
	assert.Equal(t, Decide(scores, th), Decide(scores, th))
}
