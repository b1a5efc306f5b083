// Package compiler lowers validated TSX component source into a CommonJS
// script. It performs no type checking.
package compiler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// SourceFile is the virtual file name used in diagnostics.
const SourceFile = "Lesson.tsx"

// Artifact is the executable output of Compile.
type Artifact struct {
	Script   string   `json:"script"`
	Warnings []string `json:"warnings,omitempty"`
}

// CompileError carries every message esbuild reported for a failed transform.
type CompileError struct {
	Messages []api.Message
}

func (e *CompileError) Error() string {
	if len(e.Messages) == 0 {
		return "compile failed"
	}
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, FormatMessage(m))
	}
	return "compile failed: " + strings.Join(parts, "; ")
}

// TransformOptions is shared with the static validator so that source which
// passes diagnostics is guaranteed to compile.
func TransformOptions() api.TransformOptions {
	return api.TransformOptions{
		Loader:      api.LoaderTSX,
		Format:      api.FormatCommonJS,
		Target:      api.ES2019,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Sourcefile:  SourceFile,
		LogLevel:    api.LogLevelSilent,
		Charset:     api.CharsetUTF8,
	}
}

// Transform runs the raw esbuild transform.
func Transform(source string) api.TransformResult {
	return api.Transform(source, TransformOptions())
}

// Compile strips type annotations and lowers JSX to function calls.
func Compile(source string) (Artifact, error) {
	if strings.TrimSpace(source) == "" {
		return Artifact{}, &CompileError{Messages: []api.Message{{Text: "empty source"}}}
	}
	res := Transform(source)
	if len(res.Errors) > 0 {
		return Artifact{}, &CompileError{Messages: res.Errors}
	}
	out := Artifact{Script: string(res.Code)}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, FormatMessage(w))
	}
	return out, nil
}

func FormatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column+1, m.Text)
}
