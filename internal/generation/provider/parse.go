package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

// decodeStrict re-encodes a generic JSON object into dst, rejecting unknown
// fields and type mismatches.
func decodeStrict(obj map[string]any, dst any) error {
	if obj == nil {
		return errors.New("empty response object")
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type wireScores struct {
	SafetyScore         *float64 `json:"safety_score"`
	SpecificityScore    *float64 `json:"specificity_score"`
	MatchesTopicCatalog *bool    `json:"matches_topic_catalog"`
	TargetAgeRange      *struct {
		Min *int `json:"min"`
		Max *int `json:"max"`
	} `json:"target_age_range"`
	Actionable      *bool    `json:"actionable"`
	Requirements    []string `json:"requirements"`
	DetectedTopic   *string  `json:"detected_topic"`
	DetectedDomains []string `json:"detected_domains"`
}

// ParseScores validates an outline-validation response.
func ParseScores(obj map[string]any) (types.ValidationScores, error) {
	var w wireScores
	if err := decodeStrict(obj, &w); err != nil {
		return types.ValidationScores{}, err
	}
	switch {
	case w.SafetyScore == nil:
		return types.ValidationScores{}, errors.New("missing safety_score")
	case w.SpecificityScore == nil:
		return types.ValidationScores{}, errors.New("missing specificity_score")
	case w.MatchesTopicCatalog == nil:
		return types.ValidationScores{}, errors.New("missing matches_topic_catalog")
	case w.Actionable == nil:
		return types.ValidationScores{}, errors.New("missing actionable")
	case w.TargetAgeRange == nil || w.TargetAgeRange.Min == nil || w.TargetAgeRange.Max == nil:
		return types.ValidationScores{}, errors.New("missing target_age_range")
	case w.DetectedTopic == nil:
		return types.ValidationScores{}, errors.New("missing detected_topic")
	}
	for name, v := range map[string]float64{"safety_score": *w.SafetyScore, "specificity_score": *w.SpecificityScore} {
		if v < 0 || v > 1 {
			return types.ValidationScores{}, fmt.Errorf("%s out of range [0,1]: %v", name, v)
		}
	}
	if *w.TargetAgeRange.Min < 0 || *w.TargetAgeRange.Max < 0 {
		return types.ValidationScores{}, errors.New("negative target_age_range")
	}
	return types.ValidationScores{
		SafetyScore:         *w.SafetyScore,
		SpecificityScore:    *w.SpecificityScore,
		MatchesTopicCatalog: *w.MatchesTopicCatalog,
		TargetAgeRange:      types.AgeRange{Min: *w.TargetAgeRange.Min, Max: *w.TargetAgeRange.Max},
		Actionable:          *w.Actionable,
		Requirements:        nonNil(w.Requirements),
		DetectedTopic:       strings.TrimSpace(*w.DetectedTopic),
		DetectedDomains:     nonNil(w.DetectedDomains),
	}, nil
}

type wireBlock struct {
	Type         string  `json:"type"`
	Content      *string `json:"content"`
	Format       *string `json:"format"`
	Alt          *string `json:"alt"`
	Caption      *string `json:"caption"`
	Kind         *string `json:"kind"`
	Prompt       *string `json:"prompt"`
	MetadataJSON *string `json:"metadata_json"`
}

type wireLessons struct {
	Lessons []struct {
		Title  string      `json:"title"`
		Blocks []wireBlock `json:"blocks"`
	} `json:"lessons"`
}

// ParseLessons validates a block-generation response into typed lessons.
// The per-outline block cap is enforced by the caller.
func ParseLessons(obj map[string]any) ([]types.Lesson, error) {
	var w wireLessons
	if err := decodeStrict(obj, &w); err != nil {
		return nil, err
	}
	if len(w.Lessons) == 0 {
		return nil, errors.New("no lessons returned")
	}
	out := make([]types.Lesson, 0, len(w.Lessons))
	for i, l := range w.Lessons {
		title := strings.TrimSpace(l.Title)
		if title == "" {
			return nil, fmt.Errorf("lesson %d: empty title", i)
		}
		if len(l.Blocks) == 0 {
			return nil, fmt.Errorf("lesson %d: no blocks", i)
		}
		blocks := make(types.Blocks, 0, len(l.Blocks))
		for j, wb := range l.Blocks {
			b, err := wb.toBlock()
			if err != nil {
				return nil, fmt.Errorf("lesson %d block %d: %w", i, j, err)
			}
			if err := b.Validate(); err != nil {
				return nil, fmt.Errorf("lesson %d block %d: %w", i, j, err)
			}
			blocks = append(blocks, b)
		}
		out = append(out, types.Lesson{Title: title, Blocks: blocks})
	}
	return out, nil
}

func (w wireBlock) toBlock() (types.Block, error) {
	switch types.BlockKind(w.Type) {
	case types.BlockText:
		return types.TextBlock{Content: deref(w.Content)}, nil
	case types.BlockImage:
		return types.ImageBlock{
			Format:  types.ImageFormat(deref(w.Format)),
			Content: deref(w.Content),
			Alt:     deref(w.Alt),
			Caption: nonEmpty(w.Caption),
		}, nil
	case types.BlockInteraction:
		var meta map[string]any
		if raw := strings.TrimSpace(deref(w.MetadataJSON)); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				return nil, fmt.Errorf("metadata_json: %w", err)
			}
		}
		return types.InteractionBlock{
			Kind:     types.InteractionKind(deref(w.Kind)),
			Prompt:   deref(w.Prompt),
			Metadata: meta,
		}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", w.Type)
	}
}

type wireSource struct {
	Source *string `json:"source"`
}

// ParseSource extracts component source, tolerating a markdown fence.
func ParseSource(obj map[string]any) (string, error) {
	var w wireSource
	if err := decodeStrict(obj, &w); err != nil {
		return "", err
	}
	if w.Source == nil {
		return "", errors.New("missing source")
	}
	src := stripFence(*w.Source)
	if strings.TrimSpace(src) == "" {
		return "", errors.New("empty source")
	}
	return src, nil
}

func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t) + "\n"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
