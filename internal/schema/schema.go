// Package schema declares the target extraction schema: which fields to
// populate, their expected types, and which are required.
package schema

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldType is the expected type of an extracted field value.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeCurrency FieldType = "currency"
	TypeDate     FieldType = "date"
	TypeText     FieldType = "text"
)

// FieldSpec declares one target field.
type FieldSpec struct {
	Name     string    `yaml:"name" json:"name"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`

	// Keywords are anchor terms the heuristic extractor scans for.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`

	// Description is a short hint embedded into model-backed prompts.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Schema is an indexed collection of field specs.
type Schema struct {
	Fields   []FieldSpec
	byName   map[string]*FieldSpec
	required []*FieldSpec
}

// New creates a Schema with indexed lookups.
func New(fields []FieldSpec) *Schema {
	s := &Schema{
		Fields: fields,
		byName: make(map[string]*FieldSpec, len(fields)),
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Type == "" {
			f.Type = TypeString
		}
		s.byName[f.Name] = f
		if f.Required {
			s.required = append(s.required, f)
		}
	}
	return s
}

// ByName returns the field spec for the given name, or nil if not found.
func (s *Schema) ByName(name string) *FieldSpec {
	return s.byName[name]
}

// Required returns all required field specs.
func (s *Schema) Required() []*FieldSpec {
	return s.required
}

// Validate checks the schema for structural problems: empty or duplicate
// field names, unknown types.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return eris.New("schema: field with empty name")
		}
		if seen[f.Name] {
			return eris.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case TypeString, TypeCurrency, TypeDate, TypeText:
		default:
			return eris.Errorf("schema: field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Load reads a schema from a YAML file with a top-level "fields" key.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}

	var wrapper struct {
		Fields []FieldSpec `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s", path)
	}
	if len(wrapper.Fields) == 0 {
		return nil, eris.Errorf("schema: %s declares no fields", path)
	}

	s := New(wrapper.Fields)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultProgram returns the built-in schema for university program pages.
func DefaultProgram() *Schema {
	return New([]FieldSpec{
		{
			Name:        "program_name",
			Type:        TypeString,
			Required:    true,
			Keywords:    []string{"master", "masters", "programme", "program in", "bachelor"},
			Description: "Official name of the degree program",
		},
		{
			Name:        "university_name",
			Type:        TypeString,
			Keywords:    []string{"university", "college", "institute"},
			Description: "Name of the university offering the program",
		},
		{
			Name:        "tuition_fee",
			Type:        TypeCurrency,
			Keywords:    []string{"tuition", "fee", "fees", "cost"},
			Description: "Tuition fee per year, with currency",
		},
		{
			Name:        "application_deadline",
			Type:        TypeDate,
			Keywords:    []string{"deadline", "apply by", "application period", "closes on"},
			Description: "Application deadline date",
		},
		{
			Name:        "entry_requirement_summary",
			Type:        TypeText,
			Required:    true,
			Keywords:    []string{"requirement", "admission", "entry", "eligibility", "qualification", "prerequisite", "ielts", "toefl"},
			Description: "Short summary of entry requirements",
		},
	})
}
