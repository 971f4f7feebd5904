package db

import (
	"time"

	"github.com/google/uuid"
)

// Stage name constants used for pipeline run markers.
const (
	StageCollect = "collect"
	StageExtract = "extract"
	StageStats   = "stats"
)

// Detection method constants
const (
	MethodPatternMatch = "pattern_matching"
)

// JobRecord represents one normalized job posting plus its verbatim upstream payload.
type JobRecord struct {
	ID       uuid.UUID `json:"id"`
	Source   string    `json:"source"`
	SourceID string    `json:"source_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// RawText is the concatenation of title, description and declared skill
	// labels used for pattern matching. HTML is stripped before storage.
	RawText string `json:"-"`

	PostalCode   string `json:"postal_code,omitempty"`
	Department   string `json:"department,omitempty"`
	ContractType string `json:"contract_type,omitempty"`

	// Payload is the raw upstream record, retained verbatim for audit.
	Payload []byte `json:"-"`

	Tags      []string `json:"tags,omitempty"`
	Processed bool     `json:"processed"`
	Active    bool     `json:"active"`

	CreatedUpstream *time.Time `json:"created_upstream,omitempty"`
	UpdatedUpstream *time.Time `json:"updated_upstream,omitempty"`
	CollectedAt     time.Time  `json:"collected_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// DeriveDepartment returns the administrative division code derived from a
// postal code (its first two digits), or empty when unavailable.
func DeriveDepartment(postalCode string) string {
	if len(postalCode) < 2 {
		return ""
	}
	return postalCode[:2]
}

// Detection is an immutable fact: one skill label matched one job record.
// Rows are append-only; JobRecord.Tags is the derived current summary.
type Detection struct {
	ID         uuid.UUID `json:"id"`
	JobID      string    `json:"job_id"` // upstream source id of the record
	Source     string    `json:"source"`
	Skill      string    `json:"skill"`
	Category   string    `json:"category,omitempty"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
	DetectedAt time.Time `json:"detected_at"`
}

// RunMarker records the last successful run of one pipeline stage for one
// source. It exists solely for staleness gating.
type RunMarker struct {
	Stage        string    `json:"stage"`
	Source       string    `json:"source"`
	LastRunAt    time.Time `json:"last_run_at"`
	SummaryCount int       `json:"summary_count"`
}

// Age returns how long ago the marker's stage last ran.
func (m *RunMarker) Age(now time.Time) time.Duration {
	return now.Sub(m.LastRunAt)
}

// StaleAfter reports whether the stage is older than the given window.
func (m *RunMarker) StaleAfter(now time.Time, window time.Duration) bool {
	return m.Age(now) > window
}

// StatsSnapshot is one stored aggregate statistics document for a source and
// period, overwritten each time the stats stage runs for that period.
type StatsSnapshot struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	Period      string    `json:"period"` // e.g. "2026-08"
	Payload     []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}
