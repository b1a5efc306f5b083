package staticcheck

import (
	"fmt"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/generation/compiler"
)

// scanImports returns every module specifier the source references, in
// first-seen order. Static imports, re-exports, dynamic imports and require
// calls are all reported.
func scanImports(source string) ([]string, []api.Message) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		refs []string
	)
	collector := api.Plugin{
		Name: "lesson-import-collector",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				mu.Lock()
				if !seen[args.Path] {
					seen[args.Path] = true
					refs = append(refs, args.Path)
				}
				mu.Unlock()
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
	opts := compiler.TransformOptions()
	res := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			Loader:     api.LoaderTSX,
			Sourcefile: compiler.SourceFile,
			ResolveDir: "/",
		},
		Bundle:      true,
		Write:       false,
		Format:      api.FormatESModule,
		Platform:    api.PlatformNeutral,
		JSX:         opts.JSX,
		JSXFactory:  opts.JSXFactory,
		JSXFragment: opts.JSXFragment,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{collector},
	})
	mu.Lock()
	defer mu.Unlock()
	return refs, res.Errors
}

func (v *Validator) checkImport(source, spec string) (types.ValidationError, bool) {
	line, col := locate(source, spec)
	base := types.ValidationError{
		Category: types.CategoryImport,
		Severity: types.SeverityError,
		Line:     line,
		Column:   col,
	}
	switch {
	case matches(spec, v.imports.Blocked, v.imports.BlockedPrefixes):
		base.Code = CodeBlockedImport
		base.Message = fmt.Sprintf("import %q is blocked: lesson components may not use navigation or persistence clients", spec)
		return base, true
	case isRelative(spec):
		base.Code = CodeUnknownImport
		base.Message = fmt.Sprintf("import %q is not available: lesson components are a single self-contained file", spec)
		return base, true
	case !matches(spec, v.imports.Allowed, v.imports.AllowedPrefixes):
		base.Code = CodeUnknownImport
		base.Message = fmt.Sprintf("import %q is not in the allowed module list", spec)
		return base, true
	default:
		return types.ValidationError{}, false
	}
}

// matches reports whether spec equals a listed module, is a subpath of one,
// or starts with a listed prefix.
func matches(spec string, exact, prefixes []string) bool {
	for _, m := range exact {
		if spec == m || strings.HasPrefix(spec, m+"/") {
			return true
		}
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(spec, p) {
			return true
		}
	}
	return false
}

func isRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

// locate finds the first quoted occurrence of spec and returns its 1-based
// line and column.
func locate(source, spec string) (int, int) {
	idx := -1
	for _, q := range []string{`"`, `'`, "`"} {
		if i := strings.Index(source, q+spec+q); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 0 {
		return 0, 0
	}
	line := 1 + strings.Count(source[:idx], "\n")
	col := idx + 1
	if nl := strings.LastIndex(source[:idx], "\n"); nl >= 0 {
		col = idx - nl
	}
	return line, col
}
