package schema

import "encoding/json"

// JSONSchema renders s as a JSON-schema object for extraction prompts.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		p := map[string]any{"type": "string"}
		switch f.Kind {
		case KindList:
			p = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case KindURL:
			p["format"] = "uri"
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
	}

	out := map[string]any{
		"title":      s.Name,
		"type":       "object",
		"properties": props,
	}
	if req := s.Required(); len(req) > 0 {
		out["required"] = req
	}
	return out
}

// JSONSchemaString is JSONSchema encoded as indented JSON.
func (s Schema) JSONSchemaString() string {
	b, _ := json.MarshalIndent(s.JSONSchema(), "", "  ") //nolint:errcheck
	return string(b)
}
