package gemini

import (
	"fmt"
	"sort"

	"github.com/google/generative-ai-go/genai"
)

// SchemaFromJSONSchema converts the strict JSON-schema subset used for
// structured outputs into a genai response schema. A ["T","null"] type union
// becomes a nullable T.
func SchemaFromJSONSchema(node map[string]any) (*genai.Schema, error) {
	return convert(node, "$")
}

func convert(node map[string]any, path string) (*genai.Schema, error) {
	out := &genai.Schema{}
	typ, nullable, err := schemaType(node["type"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out.Nullable = nullable
	if d, ok := node["description"].(string); ok {
		out.Description = d
	}
	if enum, ok := node["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	switch typ {
	case "object":
		out.Type = genai.TypeObject
		props, _ := node["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out.Properties = make(map[string]*genai.Schema, len(props))
		for _, k := range keys {
			child, ok := props[k].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: property must be an object", path, k)
			}
			s, err := convert(child, path+"."+k)
			if err != nil {
				return nil, err
			}
			out.Properties[k] = s
		}
		if req, ok := node["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
	case "array":
		out.Type = genai.TypeArray
		items, ok := node["items"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: array without items", path)
		}
		s, err := convert(items, path+"[]")
		if err != nil {
			return nil, err
		}
		out.Items = s
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		return nil, fmt.Errorf("%s: unsupported type %q", path, typ)
	}
	return out, nil
}

func schemaType(v any) (string, bool, error) {
	switch t := v.(type) {
	case string:
		return t, false, nil
	case []any:
		var base string
		nullable := false
		for _, item := range t {
			s, _ := item.(string)
			if s == "null" {
				nullable = true
				continue
			}
			if base != "" {
				return "", false, fmt.Errorf("multi-type unions are not supported")
			}
			base = s
		}
		if base == "" {
			return "", false, fmt.Errorf("type union without a concrete type")
		}
		return base, nullable, nil
	default:
		return "", false, fmt.Errorf("missing type")
	}
}
