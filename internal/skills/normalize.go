package skills

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// asciiFolder maps typographic characters that survive NFKC to their ASCII
// equivalents, so upstream encoding quirks do not cause silent misses.
var asciiFolder = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
	" ", " ", // non-breaking space
	" ", " ", // narrow non-breaking space
)

// NormalizeText prepares free text for pattern matching: NFKC normalization,
// typographic-to-ASCII folding, lowercasing and whitespace collapsing.
// Matching is a pure function of (text, library), so normalizing here keeps
// the matcher itself stateless.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = asciiFolder.Replace(s)
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NameKey returns the canonical lookup key for a skill label: lowercased with
// whitespace collapsed. Unique across the library.
func NameKey(label string) string {
	return NormalizeText(label)
}
