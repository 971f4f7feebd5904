package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-harvester/internal/db"
)

// payloadFields is the subset of the upstream record the store normalizes.
// The full payload is retained verbatim alongside it.
type payloadFields struct {
	ID                string `json:"id"`
	Intitule          string `json:"intitule"`
	Description       string `json:"description"`
	DateCreation      string `json:"dateCreation"`
	DateActualisation string `json:"dateActualisation"`
	TypeContrat       string `json:"typeContrat"`
	LieuTravail       struct {
		CodePostal string `json:"codePostal"`
	} `json:"lieuTravail"`
	Competences []struct {
		Libelle string `json:"libelle"`
	} `json:"competences"`
}

// ToJobRecord normalizes one raw upstream record. The raw blob is kept
// verbatim for lossless audit; rawText concatenates title, HTML-stripped
// description and declared skill labels for pattern matching.
func ToJobRecord(source string, raw json.RawMessage) (*db.JobRecord, error) {
	var fields payloadFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse upstream record: %w", err)
	}
	if fields.ID == "" {
		return nil, fmt.Errorf("upstream record has no id")
	}

	description := StripHTML(fields.Description)

	var textParts []string
	if fields.Intitule != "" {
		textParts = append(textParts, fields.Intitule)
	}
	if description != "" {
		textParts = append(textParts, description)
	}
	for _, comp := range fields.Competences {
		if comp.Libelle != "" {
			textParts = append(textParts, comp.Libelle)
		}
	}

	return &db.JobRecord{
		Source:          source,
		SourceID:        fields.ID,
		Title:           fields.Intitule,
		Description:     description,
		RawText:         strings.Join(textParts, "\n"),
		PostalCode:      fields.LieuTravail.CodePostal,
		Department:      db.DeriveDepartment(fields.LieuTravail.CodePostal),
		ContractType:    fields.TypeContrat,
		Payload:         raw,
		Active:          true,
		CreatedUpstream: parseUpstreamTime(fields.DateCreation),
		UpdatedUpstream: parseUpstreamTime(fields.DateActualisation),
	}, nil
}

// StripHTML extracts the text content from an HTML fragment. Descriptions
// arrive with markup from some upstream partners; plain text passes through
// unchanged apart from whitespace cleanup.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<>") {
		return cleanWhitespace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanWhitespace(s)
	}
	doc.Find("script, style").Remove()
	return cleanWhitespace(doc.Text())
}

// cleanWhitespace trims lines and drops empty ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// parseUpstreamTime parses the API's ISO timestamps, tolerating the
// fractional-seconds variant ("2024-10-15T10:30:00.000Z"). Unparseable or
// empty values yield nil rather than a bogus date.
func parseUpstreamTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
