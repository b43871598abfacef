package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://WWW.Example.EDU/msc-data", "https://www.example.edu/msc-data"},
		{"strips default https port", "https://example.edu:443/programs", "https://example.edu/programs"},
		{"strips default http port", "http://example.edu:80/programs", "http://example.edu/programs"},
		{"keeps explicit port", "https://example.edu:8443/programs", "https://example.edu:8443/programs"},
		{"drops fragment", "https://example.edu/programs#fees", "https://example.edu/programs"},
		{"drops trailing slash", "https://example.edu/programs/", "https://example.edu/programs"},
		{"drops utm params", "https://example.edu/p?utm_source=x&utm_campaign=y&year=2026", "https://example.edu/p?year=2026"},
		{"sorts query params", "https://example.edu/p?b=2&a=1", "https://example.edu/p?a=1&b=2"},
		{"trims whitespace", "  https://example.edu/p  ", "https://example.edu/p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "example.edu/no-scheme", "https://"} {
		_, err := CanonicalURL(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNewSource_StableIdentity(t *testing.T) {
	a, err := NewSource("https://example.edu/msc-data/?utm_source=newsletter", "MSc Data")
	require.NoError(t, err)
	b, err := NewSource("HTTPS://EXAMPLE.EDU/msc-data", "")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID, "equivalent URLs must map to one source")
	assert.Len(t, a.ID, 32)
	assert.Equal(t, "MSc Data", a.Label)
}

func TestTextHash(t *testing.T) {
	h1 := TextHash("Tuition fees are EUR 20,000 per annum.")
	h2 := TextHash("Tuition fees are EUR 20,000 per annum.")
	h3 := TextHash("Tuition fees are EUR 21,000 per annum.")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
