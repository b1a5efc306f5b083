// Package staticcheck validates generated lesson component source before it
// is compiled. Syntax diagnostics run first; the import allow-list only runs
// on source that parses cleanly, and the optional type checker only on
// source that passes both.
package staticcheck

import (
	"context"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/compiler"
	"github.com/yungbote/lessonforge/internal/generation/policy"
)

const (
	CodeBlockedImport = "blocked-import"
	CodeUnknownImport = "unknown-import"
	CodeEmptySource   = "empty-source"
)

// Result is the outcome of one validation. Warnings never affect Valid.
type Result struct {
	Valid    bool                    `json:"valid"`
	Errors   []types.ValidationError `json:"errors"`
	Warnings []types.ValidationError `json:"warnings,omitempty"`
}

type Validator struct {
	imports policy.Imports
	types   TypeChecker
}

type Option func(*Validator)

// WithTypeChecker adds a type-check pass to Check. A nil checker is ignored.
func WithTypeChecker(tc TypeChecker) Option {
	return func(v *Validator) { v.types = tc }
}

func New(imports policy.Imports, opts ...Option) *Validator {
	v := &Validator{imports: imports}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check runs Validate and then, when configured, the type checker. The error
// is non-nil only when the type checker could not run.
func (v *Validator) Check(ctx context.Context, source string) (Result, error) {
	res := v.Validate(source)
	if !res.Valid || v.types == nil {
		return res, nil
	}
	diags, err := v.types.TypeCheck(ctx, source)
	if err != nil {
		return Result{}, err
	}
	var errs []types.ValidationError
	for _, d := range diags {
		if d.Severity == types.SeverityWarning {
			res.Warnings = append(res.Warnings, d)
			continue
		}
		errs = append(errs, d)
	}
	if len(errs) > 0 {
		return invalid(errs, res.Warnings), nil
	}
	return res, nil
}

// Validate runs the syntax and import checks. It never type-checks.
func (v *Validator) Validate(source string) Result {
	if strings.TrimSpace(source) == "" {
		return invalid([]types.ValidationError{{
			Category: types.CategoryCompile,
			Severity: types.SeverityError,
			Line:     1,
			Column:   1,
			Message:  "source is empty",
			Code:     CodeEmptySource,
		}}, nil)
	}

	diag := compiler.Transform(source)
	warnings := toValidationErrors(diag.Warnings, types.SeverityWarning)
	if len(diag.Errors) > 0 {
		return invalid(toValidationErrors(diag.Errors, types.SeverityError), warnings)
	}

	refs, scanErrs := scanImports(source)
	if len(scanErrs) > 0 {
		return invalid(toValidationErrors(scanErrs, types.SeverityError), warnings)
	}
	var errs []types.ValidationError
	for _, ref := range refs {
		if e, bad := v.checkImport(source, ref); bad {
			errs = append(errs, e)
		}
	}
	errs = append(errs, dynamicLoadErrors(source, string(diag.Code))...)
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Line != errs[j].Line {
			return errs[i].Line < errs[j].Line
		}
		return errs[i].Column < errs[j].Column
	})
	if len(errs) > 0 {
		return invalid(errs, warnings)
	}
	return Result{Valid: true, Errors: []types.ValidationError{}, Warnings: warnings}
}

func invalid(errs, warnings []types.ValidationError) Result {
	return Result{Valid: false, Errors: errs, Warnings: warnings}
}

func toValidationErrors(msgs []api.Message, sev types.Severity) []types.ValidationError {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]types.ValidationError, 0, len(msgs))
	for _, m := range msgs {
		e := types.ValidationError{
			Category: types.CategoryCompile,
			Severity: sev,
			Message:  m.Text,
			Code:     m.ID,
		}
		if m.Location != nil {
			e.Line = m.Location.Line
			e.Column = m.Location.Column + 1
		}
		out = append(out, e)
	}
	return out
}
