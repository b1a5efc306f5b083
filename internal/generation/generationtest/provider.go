package generationtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

// ValidSource is a lesson component that passes static validation.
const ValidSource = `import React from "react";
import { Star } from "lucide-react";

export default function Lesson() {
  return (
    <div>
      <Star />
      <p>Hello</p>
    </div>
  );
}
`

// BlockedSource imports a blocked navigation module.
const BlockedSource = `import React from "react";
import { useRouter } from "next/router";

export default function Lesson() {
  const router = useRouter();
  return <div onClick={() => router.back()}>Back</div>;
}
`

// Provider is a scripted generation provider. Sources are keyed by lesson
// title; each call pops the next entry and the last entry repeats.
type Provider struct {
	mu sync.Mutex

	Scores      types.ValidationScores
	ValidateErr error
	Lessons     []types.Lesson
	BlocksErr   error
	Sources     map[string][]string
	SourceErr   map[string]error

	Calls        map[string]int
	RegenAttempt map[string][]int
}

func NewProvider() *Provider {
	return &Provider{
		Sources:      map[string][]string{},
		SourceErr:    map[string]error{},
		Calls:        map[string]int{},
		RegenAttempt: map[string][]int{},
	}
}

func (p *Provider) ValidateOutline(ctx context.Context, outlineText string) (types.ValidationScores, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls["validate_outline"]++
	return p.Scores, p.ValidateErr
}

func (p *Provider) GenerateBlocks(ctx context.Context, outlineText string, feedback types.Feedback) ([]types.Lesson, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls["generate_blocks"]++
	if p.BlocksErr != nil {
		return nil, p.BlocksErr
	}
	return p.Lessons, nil
}

func (p *Provider) GenerateLessonSource(ctx context.Context, title string, blocks types.Blocks, lc types.LessonContext) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls["generate_lesson_source"]++
	return p.next(title)
}

func (p *Provider) RegenerateLessonSource(ctx context.Context, originalSource string, errs []types.ValidationError, title string, blocks types.Blocks, attempt int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls["regenerate_lesson_source"]++
	p.RegenAttempt[title] = append(p.RegenAttempt[title], attempt)
	if len(errs) == 0 {
		return "", fmt.Errorf("regenerate called without errors")
	}
	return p.next(title)
}

func (p *Provider) next(title string) (string, error) {
	if err := p.SourceErr[title]; err != nil {
		return "", err
	}
	queue := p.Sources[title]
	if len(queue) == 0 {
		return ValidSource, nil
	}
	src := queue[0]
	if len(queue) > 1 {
		p.Sources[title] = queue[1:]
	}
	return src, nil
}

func (p *Provider) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[op]
}

// SafeScores returns scores that pass the default thresholds.
func SafeScores(topic string, minAge, maxAge int) types.ValidationScores {
	return types.ValidationScores{
		SafetyScore:         0.95,
		SpecificityScore:    0.85,
		MatchesTopicCatalog: true,
		TargetAgeRange:      types.AgeRange{Min: minAge, Max: maxAge},
		Actionable:          true,
		Requirements:        []string{},
		DetectedTopic:       topic,
		DetectedDomains:     []string{strings.ToLower(topic)},
	}
}

// TextLesson builds a lesson of n text blocks.
func TextLesson(title string, n int) types.Lesson {
	blocks := make(types.Blocks, 0, n)
	for i := 0; i < n; i++ {
		blocks = append(blocks, types.TextBlock{Content: fmt.Sprintf("%s part %d", title, i+1)})
	}
	return types.Lesson{Title: title, Blocks: blocks}
}
