// Package provider is the boundary to the language-model backend. Every
// response is parsed into typed values here; nothing untyped leaves the
// package.
package provider

import (
	"context"
	"errors"
	"fmt"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	apperr "github.com/yungbote/lessonforge/internal/pkg/errors"
)

// Provider is the generation backend used by the pipeline. Each call either
// returns a value that satisfies its contract or fails with *Error.
type Provider interface {
	ValidateOutline(ctx context.Context, outlineText string) (types.ValidationScores, error)
	GenerateBlocks(ctx context.Context, outlineText string, feedback types.Feedback) ([]types.Lesson, error)
	GenerateLessonSource(ctx context.Context, title string, blocks types.Blocks, lc types.LessonContext) (string, error)
	RegenerateLessonSource(ctx context.Context, originalSource string, errs []types.ValidationError, title string, blocks types.Blocks, attempt int) (string, error)
}

// JSONGenerator is satisfied by the OpenAI and Gemini platform clients.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

const (
	OpValidateOutline        = "validate_outline"
	OpGenerateBlocks         = "generate_blocks"
	OpGenerateLessonSource   = "generate_lesson_source"
	OpRegenerateLessonSource = "regenerate_lesson_source"
)

// Error wraps a failed provider call. Contract is set when the backend
// answered but its output broke the structural contract.
type Error struct {
	Op       string
	Contract bool
	Err      error
}

func (e *Error) Error() string {
	if e.Contract {
		return fmt.Sprintf("provider %s: contract violation: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Contract && target == apperr.ErrContractViolation
}

// Kind classifies an error for audit metadata.
func Kind(err error) string {
	var pe *Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, apperr.ErrContractViolation):
		return "contract_violation"
	case errors.As(err, &pe):
		return "provider_failure"
	default:
		return "system_failure"
	}
}

func contractError(op string, err error) error {
	return &Error{Op: op, Contract: true, Err: err}
}

func callError(op string, err error) error {
	return &Error{Op: op, Err: err}
}
