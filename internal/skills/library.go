// Package skills provides the curated skill pattern library and the matcher
// that tags free text with canonical skill labels.
package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/jonathan/job-harvester/internal/schemas"
)

// Label is a canonical skill name with its category and lookup key.
type Label struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	NameKey  string `json:"name_key"`
}

// Entry maps one label to its match patterns. When PatternOnly is set the
// default word-boundary pattern derived from the label is suppressed and only
// the hand-authored patterns apply (for labels too ambiguous as bare tokens).
type Entry struct {
	Label         Label
	ExtraPatterns []string
	PatternOnly   bool
}

// Patterns returns the ordered pattern list for the entry: the default
// word-boundary pattern first (unless suppressed), then hand-authored ones.
func (e *Entry) Patterns() []string {
	var patterns []string
	if !e.PatternOnly {
		patterns = append(patterns, defaultPattern(e.Label.NameKey))
	}
	return append(patterns, e.ExtraPatterns...)
}

// Library is the immutable compiled-from-config skill dictionary. Built once
// at startup, never mutated afterwards.
type Library struct {
	entries []Entry
	byKey   map[string]*Entry
}

// libraryFile mirrors the on-disk JSON resource.
type libraryFile struct {
	Categories    map[string][]string `json:"categories"`
	ExtraPatterns map[string][]string `json:"extra_patterns"`
	PatternOnly   []string            `json:"pattern_only"`
}

// LoadLibrary reads and validates the skill library resource. A schemaPath of
// "" skips JSON Schema validation (structural errors are still caught).
func LoadLibrary(path, schemaPath string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("failed to read library file %s", path), Cause: err}
	}

	if schemaPath != "" {
		if err := schemas.ValidateBytes(schemaPath, data); err != nil {
			return nil, &ConfigError{Message: "library file does not match schema", Cause: err}
		}
	}

	var file libraryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Message: "failed to parse library JSON", Cause: err}
	}

	return buildLibrary(&file)
}

func buildLibrary(file *libraryFile) (*Library, error) {
	if len(file.Categories) == 0 {
		return nil, &ConfigError{Message: "library has no categories"}
	}

	patternOnly := make(map[string]bool, len(file.PatternOnly))
	for _, key := range file.PatternOnly {
		patternOnly[NameKey(key)] = true
	}

	// Deterministic order: categories sorted, labels in file order.
	categories := make([]string, 0, len(file.Categories))
	for category := range file.Categories {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	lib := &Library{byKey: make(map[string]*Entry)}
	for _, category := range categories {
		for _, name := range file.Categories[category] {
			key := NameKey(name)
			if key == "" {
				return nil, &ConfigError{Message: fmt.Sprintf("empty label in category %q", category)}
			}
			if _, exists := lib.byKey[key]; exists {
				return nil, &ConfigError{Message: fmt.Sprintf("duplicate label key %q", key)}
			}

			entry := Entry{
				Label:         Label{Name: name, Category: category, NameKey: key},
				ExtraPatterns: file.ExtraPatterns[key],
				PatternOnly:   patternOnly[key],
			}
			if entry.PatternOnly && len(entry.ExtraPatterns) == 0 {
				return nil, &ConfigError{
					Message: fmt.Sprintf("label %q is pattern_only but has no extra patterns", key),
				}
			}

			lib.entries = append(lib.entries, entry)
		}
	}

	for i := range lib.entries {
		lib.byKey[lib.entries[i].Label.NameKey] = &lib.entries[i]
	}
	return lib, nil
}

// Entries returns all entries in deterministic order.
func (l *Library) Entries() []Entry {
	return l.entries
}

// Lookup returns the entry for a name key, or nil.
func (l *Library) Lookup(key string) *Entry {
	return l.byKey[NameKey(key)]
}

// Len returns the number of labels in the library.
func (l *Library) Len() int {
	return len(l.entries)
}

// Categories returns the sorted distinct categories in the library.
func (l *Library) Categories() []string {
	seen := make(map[string]bool)
	var categories []string
	for _, e := range l.entries {
		if !seen[e.Label.Category] {
			seen[e.Label.Category] = true
			categories = append(categories, e.Label.Category)
		}
	}
	sort.Strings(categories)
	return categories
}
