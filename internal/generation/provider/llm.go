package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// LLM implements Provider over a structured-output JSON backend.
type LLM struct {
	gen     JSONGenerator
	log     *logger.Logger
	limiter *rate.Limiter
}

// Options tunes an LLM provider. RequestsPerSecond <= 0 disables limiting.
type Options struct {
	RequestsPerSecond float64
	Burst             int
}

func NewLLM(gen JSONGenerator, baseLog *logger.Logger, opts Options) (*LLM, error) {
	if gen == nil {
		return nil, errors.New("provider: generator is required")
	}
	if err := lintAllSchemas(); err != nil {
		return nil, fmt.Errorf("provider: schema lint: %w", err)
	}
	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}
	return &LLM{
		gen:     gen,
		log:     baseLog.With("service", "LessonProvider"),
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

func (p *LLM) ValidateOutline(ctx context.Context, outlineText string) (types.ValidationScores, error) {
	obj, err := p.call(ctx, OpValidateOutline, validateSystem, validateUser(outlineText), "outline_validation", ScoresSchema())
	if err != nil {
		return types.ValidationScores{}, err
	}
	scores, err := ParseScores(obj)
	if err != nil {
		return types.ValidationScores{}, p.contract(OpValidateOutline, err)
	}
	return scores, nil
}

func (p *LLM) GenerateBlocks(ctx context.Context, outlineText string, feedback types.Feedback) ([]types.Lesson, error) {
	obj, err := p.call(ctx, OpGenerateBlocks, blocksSystem, blocksUser(outlineText, feedback), "lesson_blocks", LessonsSchema())
	if err != nil {
		return nil, err
	}
	lessons, err := ParseLessons(obj)
	if err != nil {
		return nil, p.contract(OpGenerateBlocks, err)
	}
	return lessons, nil
}

func (p *LLM) GenerateLessonSource(ctx context.Context, title string, blocks types.Blocks, lc types.LessonContext) (string, error) {
	return p.source(ctx, OpGenerateLessonSource, sourceUser(title, blocks, lc))
}

func (p *LLM) RegenerateLessonSource(ctx context.Context, originalSource string, errs []types.ValidationError, title string, blocks types.Blocks, attempt int) (string, error) {
	return p.source(ctx, OpRegenerateLessonSource, regenerateUser(originalSource, errs, title, blocks, attempt))
}

func (p *LLM) source(ctx context.Context, op, user string) (string, error) {
	obj, err := p.call(ctx, op, sourceSystem, user, "lesson_source", SourceSchema())
	if err != nil {
		return "", err
	}
	src, err := ParseSource(obj)
	if err != nil {
		return "", p.contract(op, err)
	}
	return src, nil
}

func (p *LLM) call(ctx context.Context, op, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, callError(op, err)
	}
	start := time.Now()
	obj, err := p.gen.GenerateJSON(ctx, system, user, schemaName, schema)
	if err != nil {
		observability.ObserveProviderCall(op, "error", time.Since(start))
		p.log.Warn("provider call failed", "op", op, "error", err)
		return nil, callError(op, err)
	}
	observability.ObserveProviderCall(op, "ok", time.Since(start))
	p.log.Debug("provider call ok", "op", op, "latency_ms", time.Since(start).Milliseconds())
	return obj, nil
}

func (p *LLM) contract(op string, err error) error {
	observability.ProviderCalls.WithLabelValues(op, "contract_violation").Inc()
	p.log.Warn("provider contract violation", "op", op, "error", strings.TrimSpace(err.Error()))
	return contractError(op, err)
}
