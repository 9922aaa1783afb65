package cookies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	f, err := NewFilter([]string{"*.example.com", "example.org", " "})
	require.NoError(t, err)

	tests := []struct {
		domain string
		want   bool
	}{
		{"www.example.com", true},
		{".www.example.com", true},
		{"example.com", false},
		{"a.b.example.com", false},
		{"example.org", true},
		{".EXAMPLE.org", true},
		{"evil.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Match(tt.domain), tt.domain)
	}
	assert.Equal(t, []string{"*.example.com", "example.org"}, f.Patterns())
}

func TestFilter_SuperWildcard(t *testing.T) {
	f, err := NewFilter([]string{"**.example.com"})
	require.NoError(t, err)

	assert.True(t, f.Match("a.b.example.com"))
	assert.True(t, f.Match("www.example.com"))
}

func TestFilter_EmptyKeepsEverything(t *testing.T) {
	f, err := NewFilter(nil)
	require.NoError(t, err)
	assert.True(t, f.Empty())

	list := sampleCookies()
	assert.Equal(t, list, f.Apply(list))

	var nilFilter *Filter
	assert.True(t, nilFilter.Match("anything"))
}

func TestFilter_Apply(t *testing.T) {
	f, err := NewFilter([]string{"example.com"})
	require.NoError(t, err)

	kept := f.Apply(sampleCookies())
	require.Len(t, kept, 2)
	assert.Equal(t, "session", kept[0].Name)
	assert.Equal(t, "token", kept[1].Name)
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"[a-"})
	assert.Error(t, err)
}
