package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadFile reads an enrichment schema from a YAML file. The identifier
// field is prepended when the file does not declare it.
func LoadFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, eris.Wrapf(err, "schema: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML schema document.
func Parse(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, eris.Wrap(err, "schema: parse yaml")
	}
	if len(s.Fields) == 0 {
		return Schema{}, eris.New("schema: no fields declared")
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return Schema{}, eris.Errorf("schema: field %d has no name", i)
		}
		if seen[f.Name] {
			return Schema{}, eris.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case "":
			f.Kind = KindString
		case KindString, KindURL, KindPhone, KindList:
		default:
			return Schema{}, eris.Errorf("schema: field %q has unknown kind %q", f.Name, f.Kind)
		}
	}

	if !seen[IdentifierField] {
		id := Field{Name: IdentifierField, Required: true, Kind: KindURL, Description: "URL of the page"}
		s.Fields = append([]Field{id}, s.Fields...)
	}
	if s.Name == "" {
		s.Name = "custom"
	}
	return s, nil
}
