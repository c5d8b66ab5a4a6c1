package extract

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/schema"
)

// Normalizer resolves an extraction payload for one target URL into at
// most one validated record.
type Normalizer struct {
	Schema  schema.Schema
	IDField string
}

// NewNormalizer creates a Normalizer keyed on the schema identifier field.
func NewNormalizer(sch schema.Schema) *Normalizer {
	return &Normalizer{Schema: sch, IDField: schema.IdentifierField}
}

// Normalize returns the record that corresponds to target, or false when
// the payload holds nothing usable for it. It never panics and never
// returns an error; every rejection is logged.
func (n *Normalizer) Normalize(target string, p Payload) (rec schema.Record, ok bool) {
	log := zap.L().With(zap.String("url", target), zap.String("kind", p.kind.String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("extract: normalizer recovered from panic", zap.Any("panic", r))
			rec, ok = nil, false
		}
	}()

	v, err := resolve(p)
	if err != nil {
		log.Warn("extract: malformed extraction", zap.String("payload", p.excerpt()), zap.Error(err))
		return nil, false
	}

	var candidate map[string]any
	switch t := v.(type) {
	case []any:
		candidate = n.match(target, t)
		if candidate == nil {
			log.Info("extract: no entry matches target", zap.Int("entries", len(t)), zap.String("payload", p.excerpt()))
			return nil, false
		}
	case map[string]any:
		if id := n.identifier(t); id != "" && !SameIdentifier(id, target) {
			log.Info("extract: record targets a different url", zap.String("record_url", id))
			return nil, false
		}
		candidate = t
	}

	if n.identifier(candidate) == "" {
		candidate = withField(candidate, n.IDField, target)
	}

	rec, err = n.Schema.Validate(candidate)
	if err != nil {
		log.Info("extract: record rejected", zap.String("payload", truncate(mustJSON(candidate), 200)), zap.Error(err))
		return nil, false
	}
	return rec, true
}

// match returns the first mapping whose identifier equals target.
func (n *Normalizer) match(target string, items []any) map[string]any {
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id := n.identifier(m); id != "" && SameIdentifier(id, target) {
			return m
		}
	}
	return nil
}

func (n *Normalizer) identifier(m map[string]any) string {
	s, _ := m[n.IDField].(string)
	return strings.TrimSpace(s)
}

// withField copies m and sets key to value, leaving the payload intact.
func withField(m map[string]any, key, value string) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// SameIdentifier compares two page identifiers after trimming whitespace
// and a trailing slash, and lowercasing scheme and host.
func SameIdentifier(a, b string) bool {
	return canonicalID(a) == canonicalID(b)
}

func canonicalID(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
