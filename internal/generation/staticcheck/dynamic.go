package staticcheck

import (
	"fmt"
	"regexp"
	"strings"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

const CodeDynamicImport = "dynamic-import"

// nonLiteralLoads returns the callee of every require, __require or import
// call in code whose specifier is not a plain string literal. It runs on
// esbuild output, where JSX text is already lowered to string literals.
// Comments, strings and template text are skipped; template substitutions
// are scanned.
func nonLiteralLoads(code string) []string {
	var out []string
	n := len(code)
	for i := 0; i < n; {
		c := code[i]
		switch {
		case c == '/' && i+1 < n && code[i+1] == '/':
			for i < n && code[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && code[i+1] == '*':
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				return out
			}
			i += end + 4
		case c == '"' || c == '\'':
			i = skipQuoted(code, i)
		case c == '`':
			end, exprs := skipTemplate(code, i)
			for _, e := range exprs {
				out = append(out, nonLiteralLoads(e)...)
			}
			i = end
		case isIdentStart(c):
			j := i
			for j < n && isIdentPart(code[j]) {
				j++
			}
			word := code[i:j]
			member := prevNonSpace(code, i) == '.'
			i = j
			if member || (word != "require" && word != "__require" && word != "import") {
				continue
			}
			k := skipSpace(code, j)
			if k >= n || code[k] != '(' {
				continue
			}
			if !literalArg(code, skipSpace(code, k+1)) {
				out = append(out, word)
			}
		default:
			i++
		}
	}
	return out
}

// literalArg reports whether the call argument starting at i is a string
// literal or a template without substitutions, followed by ')' or ','.
func literalArg(code string, i int) bool {
	if i >= len(code) {
		return false
	}
	var end int
	switch code[i] {
	case '"', '\'':
		end = skipQuoted(code, i)
	case '`':
		var exprs []string
		end, exprs = skipTemplate(code, i)
		if len(exprs) > 0 {
			return false
		}
	default:
		return false
	}
	k := skipSpace(code, end)
	return k < len(code) && (code[k] == ')' || code[k] == ',')
}

// skipQuoted returns the index after the closing quote of the string at i.
// An unterminated string ends at the newline.
func skipQuoted(code string, i int) int {
	q := code[i]
	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(code)
}

// skipTemplate returns the index after the template literal at i and the
// source of each ${...} substitution.
func skipTemplate(code string, i int) (int, []string) {
	var exprs []string
	for j := i + 1; j < len(code); j++ {
		switch code[j] {
		case '\\':
			j++
		case '`':
			return j + 1, exprs
		case '$':
			if j+1 < len(code) && code[j+1] == '{' {
				end := matchBrace(code, j+1)
				exprs = append(exprs, code[j+2:end])
				j = end
			}
		}
	}
	return len(code), exprs
}

// matchBrace returns the index of the '}' closing the '{' at i.
func matchBrace(code string, i int) int {
	depth := 0
	for j := i; j < len(code); {
		switch code[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		case '"', '\'':
			j = skipQuoted(code, j)
			continue
		case '`':
			j, _ = skipTemplate(code, j)
			continue
		}
		j++
	}
	return len(code)
}

func skipSpace(code string, i int) int {
	for i < len(code) && strings.IndexByte(" \t\r\n", code[i]) >= 0 {
		i++
	}
	return i
}

func prevNonSpace(code string, i int) byte {
	for i--; i >= 0; i-- {
		if strings.IndexByte(" \t\r\n", code[i]) < 0 {
			return code[i]
		}
	}
	return 0
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

var dynamicLoadInSource = regexp.MustCompile("(?:^|[^.\\w$])(require|import)\\s*\\(\\s*[^\\s'\"`)]")

// dynamicLoadErrors turns non-literal loads found in compiled into import
// errors, positioned at the matching call in source when it can be found.
func dynamicLoadErrors(source, compiled string) []types.ValidationError {
	callees := nonLiteralLoads(compiled)
	if len(callees) == 0 {
		return nil
	}
	locs := dynamicLoadInSource.FindAllStringSubmatchIndex(source, -1)
	out := make([]types.ValidationError, 0, len(callees))
	for i, callee := range callees {
		e := types.ValidationError{
			Category: types.CategoryImport,
			Severity: types.SeverityError,
			Code:     CodeDynamicImport,
			Message:  fmt.Sprintf("%s() with a computed module specifier cannot be checked against the allowed module list", callee),
		}
		if i < len(locs) {
			e.Line, e.Column = position(source, locs[i][2])
		}
		out = append(out, e)
	}
	return out
}

// position converts a byte offset into a 1-based line and column.
func position(source string, idx int) (int, int) {
	line := 1 + strings.Count(source[:idx], "\n")
	col := idx + 1
	if nl := strings.LastIndex(source[:idx], "\n"); nl >= 0 {
		col = idx - nl
	}
	return line, col
}
