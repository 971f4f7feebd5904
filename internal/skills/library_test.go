package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLibraryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skill_library.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLibrary(t *testing.T) {
	path := writeLibraryFile(t, `{
		"categories": {
			"languages": ["Python", "TypeScript"],
			"databases": ["PostgreSQL"]
		},
		"extra_patterns": {
			"typescript": ["\\bts\\b"]
		},
		"pattern_only": []
	}`)

	lib, err := LoadLibrary(path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, lib.Len())

	entry := lib.Lookup("TypeScript")
	require.NotNil(t, entry)
	assert.Equal(t, "typescript", entry.Label.NameKey)
	assert.Equal(t, "languages", entry.Label.Category)
	assert.False(t, entry.PatternOnly)
	// Default pattern first, then hand-authored ones.
	assert.Equal(t, []string{`\btypescript\b`, `\bts\b`}, entry.Patterns())

	assert.Equal(t, []string{"databases", "languages"}, lib.Categories())
}

func TestLoadLibrary_PatternOnlySuppressesDefault(t *testing.T) {
	path := writeLibraryFile(t, `{
		"categories": {"languages": ["R"]},
		"extra_patterns": {"r": ["\\br\\s+(?:language|studio)\\b"]},
		"pattern_only": ["R"]
	}`)

	lib, err := LoadLibrary(path, "")
	require.NoError(t, err)

	entry := lib.Lookup("r")
	require.NotNil(t, entry)
	assert.True(t, entry.PatternOnly)
	assert.Equal(t, []string{`\br\s+(?:language|studio)\b`}, entry.Patterns())
}

func TestLoadLibrary_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate key across categories", `{
			"categories": {"a": ["Go"], "b": ["go"]}
		}`},
		{"duplicate key via whitespace", `{
			"categories": {"a": ["React  Native", "React Native"]}
		}`},
		{"pattern_only without patterns", `{
			"categories": {"a": ["R"]},
			"pattern_only": ["R"]
		}`},
		{"empty label", `{"categories": {"a": ["  "]}}`},
		{"no categories", `{"categories": {}}`},
		{"malformed json", `{"categories": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLibraryFile(t, tt.content)
			_, err := LoadLibrary(path, "")
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadLibrary_MissingFile(t *testing.T) {
	_, err := LoadLibrary(filepath.Join(t.TempDir(), "nope.json"), "")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadLibrary_SchemaRejectsMalformed(t *testing.T) {
	schemaPath := filepath.Join(t.TempDir(), "lib.schema.json")
	require.NoError(t, os.WriteFile(schemaPath, []byte(`{
		"type": "object",
		"required": ["categories"],
		"properties": {
			"categories": {
				"type": "object",
				"additionalProperties": {"type": "array", "items": {"type": "string"}}
			}
		}
	}`), 0o644))

	path := writeLibraryFile(t, `{"categories": {"languages": "oops"}}`)
	_, err := LoadLibrary(path, schemaPath)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
