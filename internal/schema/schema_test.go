package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndexesFields(t *testing.T) {
	s := New([]FieldSpec{
		{Name: "fee", Type: TypeCurrency},
		{Name: "deadline", Type: TypeDate},
		{Name: "requirements", Type: TypeText, Required: true},
	})

	assert.Equal(t, TypeCurrency, s.ByName("fee").Type)
	assert.Nil(t, s.ByName("missing"))

	req := s.Required()
	require.Len(t, req, 1)
	assert.Equal(t, "requirements", req[0].Name)
}

func TestNew_DefaultsTypeToString(t *testing.T) {
	s := New([]FieldSpec{{Name: "plain"}})
	assert.Equal(t, TypeString, s.ByName("plain").Type)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		fields  []FieldSpec
		wantErr string
	}{
		{"valid", []FieldSpec{{Name: "a", Type: TypeString}, {Name: "b", Type: TypeDate}}, ""},
		{"empty name", []FieldSpec{{Name: ""}}, "empty name"},
		{"duplicate", []FieldSpec{{Name: "a"}, {Name: "a"}}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.fields).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_UnknownType(t *testing.T) {
	s := &Schema{Fields: []FieldSpec{{Name: "a", Type: "integer"}}}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	content := `fields:
  - name: program_name
    type: string
    required: true
    keywords: [master, programme]
  - name: tuition_fee
    type: currency
    keywords: [tuition, fee]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Fields, 2)
	assert.True(t, s.ByName("program_name").Required)
	assert.Equal(t, []string{"tuition", "fee"}, s.ByName("tuition_fee").Keywords)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("fields: []\n"), 0o644))
	_, err = Load(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fields")
}

func TestDefaultProgram(t *testing.T) {
	s := DefaultProgram()
	require.NoError(t, s.Validate())

	assert.NotNil(t, s.ByName("program_name"))
	assert.NotNil(t, s.ByName("university_name"))
	assert.NotNil(t, s.ByName("tuition_fee"))
	assert.NotNil(t, s.ByName("application_deadline"))
	assert.NotNil(t, s.ByName("entry_requirement_summary"))

	names := make([]string, 0, 2)
	for _, f := range s.Required() {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"program_name", "entry_requirement_summary"}, names)
}
