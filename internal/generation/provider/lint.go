package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LintStrictSchema checks a schema against the strict structured-output
// subset: no oneOf/anyOf/allOf, and every object with properties must set
// additionalProperties:false and list every property in required.
func LintStrictSchema(name string, schema map[string]any) error {
	if schema == nil {
		return fmt.Errorf("schema is nil")
	}
	path := strings.TrimSpace(name)
	if path == "" {
		path = "$"
	}
	return lintNode(schema, path)
}

func lintNode(node any, path string) error {
	m, ok := node.(map[string]any)
	if !ok || m == nil {
		return nil
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if _, ok := m[key]; ok {
			return fmt.Errorf("%s: %s is not permitted", path, key)
		}
	}
	if items, ok := m["items"]; ok {
		if err := lintNode(items, path+".items"); err != nil {
			return err
		}
	}
	propsAny, hasProps := m["properties"]
	if !hasProps || propsAny == nil {
		return nil
	}
	props, ok := propsAny.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: properties must be an object", path)
	}
	if ap, ok := m["additionalProperties"]; !ok || ap != false {
		return fmt.Errorf("%s: additionalProperties must be false", path)
	}
	reqArr, ok := m["required"].([]any)
	if !ok {
		return fmt.Errorf("%s: required must list every key in properties", path)
	}
	reqSet := map[string]bool{}
	for _, v := range reqArr {
		if k := strings.TrimSpace(fmt.Sprint(v)); k != "" {
			reqSet[k] = true
		}
	}
	var missing, extra []string
	for k := range props {
		if !reqSet[k] {
			missing = append(missing, k)
		}
	}
	for k := range reqSet {
		if _, ok := props[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: required missing keys: %v", path, missing)
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%s: required includes unknown keys: %v", path, extra)
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := lintNode(props[k], path+".properties."+k); err != nil {
			return err
		}
	}
	return nil
}

var (
	schemaLintOnce sync.Once
	schemaLintErr  error
)

func lintAllSchemas() error {
	schemaLintOnce.Do(func() {
		names := make([]string, 0)
		all := Schemas()
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := LintStrictSchema(name, all[name]); err != nil {
				schemaLintErr = err
				return
			}
		}
	})
	return schemaLintErr
}
