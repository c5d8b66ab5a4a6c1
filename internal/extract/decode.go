package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// decodeText turns extractor text into a decoded JSON value: a mapping or
// a sequence. Markdown fences and surrounding prose are tolerated, and a
// JSON string that itself encodes JSON is decoded once more.
func decodeText(text string) (any, error) {
	s := stripFences(text)
	if s == "" {
		return nil, eris.New("extract: empty text")
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		inner, ok := enclosed(s)
		if !ok {
			return nil, eris.Wrap(err, "extract: no json found")
		}
		if err := json.Unmarshal([]byte(inner), &v); err != nil {
			return nil, eris.Wrap(err, "extract: decode json")
		}
	}

	if str, ok := v.(string); ok {
		inner := stripFences(str)
		if err := json.Unmarshal([]byte(inner), &v); err != nil {
			return nil, eris.Wrap(err, "extract: decode nested json string")
		}
	}

	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, eris.Errorf("extract: decoded %T, want object or list", v)
	}
}

// stripFences removes a leading ```json fence and a trailing ``` fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// enclosed returns the span from the first '{' or '[' to the last matching
// closing bracket.
func enclosed(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// resolve flattens a payload into a decoded value without logging.
func resolve(p Payload) (any, error) {
	switch p.kind {
	case KindObject:
		return p.object, nil
	case KindList:
		return p.list, nil
	case KindText:
		return decodeText(p.text)
	default:
		return nil, eris.New("extract: empty payload")
	}
}

// DecodeRecords decodes a harvest payload into candidate mappings. Items
// that are not mappings or that carry "error": true are dropped, and a
// false "error" flag is removed.
func DecodeRecords(p Payload) []map[string]any {
	v, err := resolve(p)
	if err != nil {
		zap.L().Info("extract: harvest payload not decodable",
			zap.String("kind", p.kind.String()),
			zap.String("payload", p.excerpt()),
			zap.Error(err),
		)
		return nil
	}

	var items []any
	switch t := v.(type) {
	case map[string]any:
		items = []any{t}
	case []any:
		items = t
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if flag, ok := m["error"].(bool); ok {
			if flag {
				zap.L().Debug("extract: dropping item flagged as error", zap.String("payload", truncate(mustJSON(m), 200)))
				continue
			}
			m = without(m, "error")
		}
		out = append(out, m)
	}
	return out
}

// without copies m minus key so payload maps are never mutated.
func without(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
