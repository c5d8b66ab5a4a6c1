// Package schema declares record shapes and coerces raw extraction output
// into them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/unicode/norm"
)

// IdentifierField is the enrichment field that names the fetched page.
const IdentifierField = "profile_url"

// ListSeparator joins list values into a single cell.
const ListSeparator = ";"

// Kind is the value kind of a declared field.
type Kind string

const (
	KindString Kind = "string"
	KindURL    Kind = "url"
	KindPhone  Kind = "phone"
	KindList   Kind = "list"
)

var (
	// ErrMissingRequired marks a required field that is absent or empty.
	ErrMissingRequired = errors.New("missing required field")
	// ErrWrongType marks a field whose value has the wrong fundamental type.
	ErrWrongType = errors.New("wrong value type")
)

// ValidationError reports why a raw record was rejected.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: field %q: %v", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Field declares one column of a record.
type Field struct {
	Name        string `yaml:"name" json:"name"`
	Required    bool   `yaml:"required" json:"required"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Schema is an ordered set of declared fields.
type Schema struct {
	Name   string  `yaml:"name" json:"name"`
	Fields []Field `yaml:"fields" json:"fields"`

	// Region is the default region for phone parsing, e.g. "BR".
	Region string `yaml:"-" json:"-"`
}

// Record is a validated record: field name to coerced string value.
// Only non-empty values are present.
type Record map[string]string

// Names returns the declared field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Required returns the names of required fields in order.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Has reports whether name is a declared field.
func (s Schema) Has(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// WithRegion returns a copy of s that parses phones in region.
func (s Schema) WithRegion(region string) Schema {
	s.Region = region
	return s
}

// Validate coerces raw into a Record. It fails only when a required field
// is missing or a declared field holds an object.
func (s Schema) Validate(raw map[string]any) (Record, error) {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		var val string
		if ok && v != nil {
			str, err := coerce(v)
			if err != nil {
				return nil, &ValidationError{Field: f.Name, Reason: err}
			}
			val = s.refine(f, str)
		}

		if val == "" {
			if f.Required {
				return nil, &ValidationError{Field: f.Name, Reason: ErrMissingRequired}
			}
			continue
		}
		rec[f.Name] = val
	}
	return rec, nil
}

// refine applies kind-specific repair to a coerced value.
func (s Schema) refine(f Field, v string) string {
	switch f.Kind {
	case KindURL:
		if !IsHTTPURL(v) {
			return ""
		}
	case KindPhone:
		return normalizePhone(v, s.Region)
	}
	return v
}

// coerce turns a decoded JSON value into its cell representation.
func coerce(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(strings.TrimSpace(t)), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case json.Number:
		return t.String(), nil
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return coerceList(items)
	case []any:
		return coerceList(t)
	default:
		return "", ErrWrongType
	}
}

func coerceList(items []any) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		switch item.(type) {
		case map[string]any, []any:
			return "", ErrWrongType
		}
		s, err := coerce(item)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ListSeparator), nil
}

// IsHTTPURL reports whether s is an absolute http or https URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// normalizePhone formats v as E.164 when it parses as a valid number,
// otherwise it is returned verbatim.
func normalizePhone(v, region string) string {
	if region == "" {
		region = "BR"
	}
	num, err := phonenumbers.Parse(v, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return v
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
