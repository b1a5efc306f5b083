package generation

import "fmt"

type ErrorCategory string

const (
	CategoryCompile ErrorCategory = "compile"
	CategoryImport  ErrorCategory = "import"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError is one static-validation finding on generated source.
// Line and Column are 1-based; zero means unknown.
type ValidationError struct {
	Category ErrorCategory `json:"category"`
	Severity Severity      `json:"severity"`
	Line     int           `json:"line"`
	Column   int           `json:"column"`
	Message  string        `json:"message"`
	Code     string        `json:"code,omitempty"`
}

func (e ValidationError) String() string {
	code := ""
	if e.Code != "" {
		code = " [" + e.Code + "]"
	}
	return fmt.Sprintf("%s %s at %d:%d%s: %s", e.Category, e.Severity, e.Line, e.Column, code, e.Message)
}
