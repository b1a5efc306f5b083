package staticcheck

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/compiler"
)

// TypeChecker reports type errors in a lesson component that already parses
// and passes the import checks. An error means the checker itself could not
// run, not that the source is wrong.
type TypeChecker interface {
	TypeCheck(ctx context.Context, source string) ([]types.ValidationError, error)
}

// DefaultIgnoredTypeCodes are diagnostics owned by the import checks:
// module resolution and missing declaration files.
var DefaultIgnoredTypeCodes = []string{"TS2307", "TS7016"}

type TSCConfig struct {
	// Command is the tsc invocation, e.g. ["tsc"] or ["npx", "--no-install", "tsc"].
	Command []string
	// ProjectDir holds node_modules with the type packages for the allowed
	// modules. Work files are written to a temp dir beneath it.
	ProjectDir  string
	Timeout     time.Duration
	IgnoreCodes []string
}

// TSC type-checks lesson source with `tsc --noEmit`.
type TSC struct {
	cfg    TSCConfig
	ignore map[string]bool
}

func NewTSC(cfg TSCConfig) (*TSC, error) {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"tsc"}
	}
	if _, err := exec.LookPath(cfg.Command[0]); err != nil {
		return nil, fmt.Errorf("typecheck command %q: %w", cfg.Command[0], err)
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.IgnoreCodes == nil {
		cfg.IgnoreCodes = DefaultIgnoredTypeCodes
	}
	ignore := make(map[string]bool, len(cfg.IgnoreCodes))
	for _, c := range cfg.IgnoreCodes {
		ignore[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &TSC{cfg: cfg, ignore: ignore}, nil
}

func (t *TSC) TypeCheck(ctx context.Context, source string) ([]types.ValidationError, error) {
	dir, err := os.MkdirTemp(t.cfg.ProjectDir, "lesson-typecheck-")
	if err != nil {
		return nil, fmt.Errorf("typecheck workdir: %w", err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, compiler.SourceFile)
	if err := os.WriteFile(file, []byte(source), 0o600); err != nil {
		return nil, fmt.Errorf("typecheck write: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	args := append(append([]string{}, t.cfg.Command[1:]...),
		"--noEmit", "--pretty", "false",
		"--strict", "--skipLibCheck",
		"--jsx", "react", "--target", "es2019",
		"--module", "esnext", "--moduleResolution", "node",
		"--esModuleInterop", "--allowSyntheticDefaultImports",
		file,
	)
	cmd := exec.CommandContext(ctx, t.cfg.Command[0], args...)
	cmd.Dir = t.cfg.ProjectDir
	out, runErr := cmd.CombinedOutput()

	diags := ParseTSCOutput(out)
	if runErr != nil {
		// tsc exits non-zero whenever it reports diagnostics.
		var exitErr *exec.ExitError
		if len(diags) == 0 || !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("typecheck: %w: %s", runErr, firstLine(out))
		}
	}
	kept := make([]types.ValidationError, 0, len(diags))
	for _, d := range diags {
		if !t.ignore[d.Code] {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

var tscLine = regexp.MustCompile(`^(.+)\((\d+),(\d+)\): (error|warning) (TS\d+): (.*)$`)

// ParseTSCOutput reads `--pretty false` diagnostics for the lesson file.
// Diagnostics in other files are dropped.
func ParseTSCOutput(out []byte) []types.ValidationError {
	var diags []types.ValidationError
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := tscLine.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil || filepath.Base(filepath.ToSlash(m[1])) != compiler.SourceFile {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		sev := types.SeverityError
		if m[4] == "warning" {
			sev = types.SeverityWarning
		}
		diags = append(diags, types.ValidationError{
			Category: types.CategoryCompile,
			Severity: sev,
			Line:     line,
			Column:   col,
			Message:  m[6],
			Code:     m[5],
		})
	}
	return diags
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
