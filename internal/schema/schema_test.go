package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CandidateRequiredFields(t *testing.T) {
	sch := Candidates()

	rec, err := sch.Validate(map[string]any{
		"title":   "  Doceria da Ana ",
		"url":     "https://www.instagram.com/doceriadaana/",
		"snippet": "Bolos e doces",
	})
	require.NoError(t, err)
	assert.Equal(t, Record{
		"title":   "Doceria da Ana",
		"url":     "https://www.instagram.com/doceriadaana/",
		"snippet": "Bolos e doces",
	}, rec)
}

func TestValidate_OptionalAbsenceIsFine(t *testing.T) {
	rec, err := Candidates().Validate(map[string]any{"title": "A", "url": "http://x/a"})
	require.NoError(t, err)
	_, ok := rec["snippet"]
	assert.False(t, ok)
}

func TestValidate_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		raw   map[string]any
		field string
	}{
		{"no title", map[string]any{"url": "http://x/a"}, "title"},
		{"empty title", map[string]any{"title": "   ", "url": "http://x/a"}, "title"},
		{"null url", map[string]any{"title": "A", "url": nil}, "url"},
		{"relative url", map[string]any{"title": "A", "url": "/a"}, "url"},
		{"ftp url", map[string]any{"title": "A", "url": "ftp://x/a"}, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Candidates().Validate(tt.raw)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrMissingRequired)
		})
	}
}

func TestValidate_WrongType(t *testing.T) {
	_, err := Candidates().Validate(map[string]any{
		"title": map[string]any{"text": "A"},
		"url":   "http://x/a",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = Website().Validate(map[string]any{
		"profile_url": "http://x/a",
		"emails":      []any{map[string]any{"address": "a@b.c"}},
	})
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestValidate_Coercion(t *testing.T) {
	sch := Schema{Fields: []Field{
		{Name: "followers", Kind: KindString},
		{Name: "verified", Kind: KindString},
		{Name: "emails", Kind: KindList},
		{Name: "website", Kind: KindURL},
		{Name: "count", Kind: KindString},
	}}

	rec, err := sch.Validate(map[string]any{
		"followers": float64(1520),
		"verified":  true,
		"emails":    []any{"a@x.com", nil, " b@x.com ", ""},
		"website":   "not a url",
		"count":     json.Number("12"),
		"extra":     "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, Record{
		"followers": "1520",
		"verified":  "true",
		"emails":    "a@x.com;b@x.com",
		"count":     "12",
	}, rec)
}

func TestValidate_NFC(t *testing.T) {
	// "Jose" with a combining acute accent composes to a single rune.
	rec, err := Candidates().Validate(map[string]any{"title": "Jose\u0301", "url": "http://x/a"})
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9", rec["title"])
}

func TestValidate_Phone(t *testing.T) {
	sch := Schema{Region: "US", Fields: []Field{{Name: "phone", Kind: KindPhone}}}

	rec, err := sch.Validate(map[string]any{"phone": "(650) 253-0000"})
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", rec["phone"])

	rec, err = sch.Validate(map[string]any{"phone": "call me"})
	require.NoError(t, err)
	assert.Equal(t, "call me", rec["phone"])
}

func TestValidateNeverPanics(t *testing.T) {
	inputs := []map[string]any{
		nil,
		{},
		{"title": []any{}},
		{"title": []any{[]any{"nested"}}},
		{"url": 3.5, "title": false},
	}
	for _, raw := range inputs {
		assert.NotPanics(t, func() { _, _ = Profile().Validate(raw) })
		assert.NotPanics(t, func() { _, _ = Candidates().Validate(raw) })
	}
}

func TestPreset(t *testing.T) {
	s, err := Preset("profile")
	require.NoError(t, err)
	assert.Equal(t, IdentifierField, s.Fields[0].Name)
	assert.Contains(t, s.Names(), "followers")

	s, err = Preset("website")
	require.NoError(t, err)
	assert.Equal(t, []string{"profile_url", "emails", "contact_links", "summary", "phone"}, s.Names())

	_, err = Preset("linkedin")
	assert.Error(t, err)
}

func TestSchemaHelpers(t *testing.T) {
	s := Candidates()
	assert.Equal(t, []string{"title", "url"}, s.Required())
	assert.True(t, s.Has("snippet"))
	assert.False(t, s.Has("bio"))
	assert.Equal(t, "BR", s.WithRegion("BR").Region)
	assert.Empty(t, s.Region)
}

func TestParse(t *testing.T) {
	doc := `
name: agency
fields:
  - name: agency_name
    required: true
    description: Name of the agency
  - name: phone
    kind: phone
  - name: services
    kind: list
`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "agency", s.Name)
	assert.Equal(t, []string{"profile_url", "agency_name", "phone", "services"}, s.Names())
	assert.Equal(t, KindString, s.Fields[1].Kind)
	assert.Equal(t, KindList, s.Fields[3].Kind)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"no fields":    "name: x\n",
		"unnamed":      "fields:\n  - kind: url\n",
		"duplicate":    "fields:\n  - name: a\n  - name: a\n",
		"unknown kind": "fields:\n  - name: a\n    kind: date\n",
		"bad yaml":     "fields: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  - name: profile_url\n    kind: url\n    required: true\n  - name: bio\n"), 0644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Name)
	assert.Equal(t, []string{"profile_url", "bio"}, s.Names())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestJSONSchema(t *testing.T) {
	js := Website().JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"profile_url"}, js["required"])

	props := js["properties"].(map[string]any)
	emails := props["emails"].(map[string]any)
	assert.Equal(t, "array", emails["type"])
	id := props["profile_url"].(map[string]any)
	assert.Equal(t, "uri", id["format"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(Website().JSONSchemaString()), &decoded))
	assert.Equal(t, "website", decoded["title"])
}
