package skills

import (
	"fmt"
	"regexp"
)

// defaultPattern derives the literal word-boundary pattern for a label key.
// Boundaries are only anchored against word characters; a key ending in a
// symbol (e.g. "c++") gets no trailing \b because RE2 would never match it.
func defaultPattern(key string) string {
	pattern := regexp.QuoteMeta(key)
	if isWordChar(key[0]) {
		pattern = `\b` + pattern
	}
	if isWordChar(key[len(key)-1]) {
		pattern += `\b`
	}
	return pattern
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type compiledEntry struct {
	label    Label
	patterns []*regexp.Regexp
}

// Matcher tests normalized free text against every library entry. It holds no
// mutable state, so one Matcher may serve concurrent callers.
type Matcher struct {
	entries []compiledEntry
}

// NewMatcher compiles every pattern in the library. A pattern that fails to
// compile is a ConfigError: the library must not silently lose entries.
func NewMatcher(lib *Library) (*Matcher, error) {
	m := &Matcher{entries: make([]compiledEntry, 0, lib.Len())}

	for _, entry := range lib.Entries() {
		ce := compiledEntry{label: entry.Label}
		for _, pattern := range entry.Patterns() {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, &ConfigError{
					Message: fmt.Sprintf("invalid pattern %q for label %q", pattern, entry.Label.NameKey),
					Cause:   err,
				}
			}
			ce.patterns = append(ce.patterns, re)
		}
		m.entries = append(m.entries, ce)
	}

	return m, nil
}

// MatchAll returns every label whose pattern set matches the text, in library
// order. The text is normalized once; each entry short-circuits on its first
// matching pattern.
func (m *Matcher) MatchAll(text string) []Label {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	var matched []Label
	for _, entry := range m.entries {
		for _, re := range entry.patterns {
			if re.MatchString(normalized) {
				matched = append(matched, entry.label)
				break
			}
		}
	}
	return matched
}
