package provider

// Strict structured-output schemas. Every object lists all of its properties
// as required and disallows extras; optional values are nullable instead.

func str() map[string]any      { return map[string]any{"type": "string"} }
func nullStr() map[string]any  { return map[string]any{"type": []any{"string", "null"}} }
func num() map[string]any      { return map[string]any{"type": "number"} }
func integer() map[string]any  { return map[string]any{"type": "integer"} }
func boolean() map[string]any  { return map[string]any{"type": "boolean"} }
func strList() map[string]any  { return map[string]any{"type": "array", "items": str()} }
func enum(values ...string) map[string]any {
	vs := make([]any, 0, len(values))
	for _, v := range values {
		vs = append(vs, v)
	}
	return map[string]any{"type": "string", "enum": vs}
}

func object(props map[string]any) map[string]any {
	req := make([]any, 0, len(props))
	for k := range props {
		req = append(req, k)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             req,
		"properties":           props,
	}
}

func ScoresSchema() map[string]any {
	return object(map[string]any{
		"safety_score":          num(),
		"specificity_score":     num(),
		"matches_topic_catalog": boolean(),
		"target_age_range": object(map[string]any{
			"min": integer(),
			"max": integer(),
		}),
		"actionable":       boolean(),
		"requirements":     strList(),
		"detected_topic":   str(),
		"detected_domains": strList(),
	})
}

// LessonsSchema flattens the block union into one object shape; fields that
// do not apply to a block type are null.
func LessonsSchema() map[string]any {
	block := object(map[string]any{
		"type":          enum("text", "image", "interaction"),
		"content":       nullStr(),
		"format":        nullStr(),
		"alt":           nullStr(),
		"caption":       nullStr(),
		"kind":          nullStr(),
		"prompt":        nullStr(),
		"metadata_json": nullStr(),
	})
	lesson := object(map[string]any{
		"title":  str(),
		"blocks": map[string]any{"type": "array", "items": block},
	})
	return object(map[string]any{
		"lessons": map[string]any{"type": "array", "items": lesson},
	})
}

func SourceSchema() map[string]any {
	return object(map[string]any{
		"source": str(),
	})
}

// Schemas lists every schema by the name sent to the backend.
func Schemas() map[string]map[string]any {
	return map[string]map[string]any{
		"outline_validation": ScoresSchema(),
		"lesson_blocks":      LessonsSchema(),
		"lesson_source":      SourceSchema(),
	}
}
