// Package stats aggregates store contents into a periodic snapshot: record
// counts, top skills overall and per category, and the monthly distribution
// of postings.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/skills"
)

// DefaultTopSkills caps the per-list skill rankings in a snapshot.
const DefaultTopSkills = 25

// DefaultMonths is how far back the monthly distribution reaches.
const DefaultMonths = 12

// Store is the slice of the job store statistics generation reads from,
// plus the snapshot sink it writes to.
type Store interface {
	CountJobs(ctx context.Context, source string) (*db.JobCounts, error)
	CountDetections(ctx context.Context, source string) (int, error)
	SkillCounts(ctx context.Context, source string, limit int) ([]db.SkillCount, error)
	MonthlyCounts(ctx context.Context, source string, since time.Time) ([]db.MonthlyCount, error)
	SaveStatsSnapshot(ctx context.Context, source, period string, payload []byte) error
}

// SkillShare is one ranked skill with its share of active records.
type SkillShare struct {
	Skill   string  `json:"skill"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Snapshot is the aggregate payload persisted per (source, period).
type Snapshot struct {
	Source      string                  `json:"source"`
	Period      string                  `json:"period"`
	GeneratedAt time.Time               `json:"generated_at"`
	Counts      db.JobCounts            `json:"counts"`
	Detections  int                     `json:"detections"`
	TopSkills   []SkillShare            `json:"top_skills"`
	ByCategory  map[string][]SkillShare `json:"by_category,omitempty"`
	Monthly     []db.MonthlyCount       `json:"monthly"`
}

// Generator builds and persists snapshots. The skill library, when present,
// lets the generator split the ranking per category; without it only the
// overall ranking is produced.
type Generator struct {
	store     Store
	library   *skills.Library
	topSkills int
	months    int

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewGenerator creates a generator over the given store. library may be nil.
func NewGenerator(store Store, library *skills.Library) *Generator {
	return &Generator{
		store:     store,
		library:   library,
		topSkills: DefaultTopSkills,
		months:    DefaultMonths,
		Now:       time.Now,
	}
}

// Generate aggregates the source's records into a snapshot for the current
// period, persists it, and returns it.
func (g *Generator) Generate(ctx context.Context, source string) (*Snapshot, error) {
	now := g.Now().UTC()
	snap := &Snapshot{
		Source:      source,
		Period:      now.Format("2006-01"),
		GeneratedAt: now,
	}

	counts, err := g.store.CountJobs(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	snap.Counts = *counts

	detections, err := g.store.CountDetections(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}
	snap.Detections = detections

	skillCounts, err := g.store.SkillCounts(ctx, source, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to rank skills: %w", err)
	}
	snap.TopSkills = topShares(skillCounts, counts.Active, g.topSkills)
	snap.ByCategory = g.splitByCategory(skillCounts, counts.Active)

	since := now.AddDate(0, -g.months, 0)
	monthly, err := g.store.MonthlyCounts(ctx, source, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly distribution: %w", err)
	}
	snap.Monthly = monthly

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := g.store.SaveStatsSnapshot(ctx, source, snap.Period, payload); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snap, nil
}

// topShares converts raw counts into ranked shares over the active total.
func topShares(counts []db.SkillCount, activeTotal, limit int) []SkillShare {
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	shares := make([]SkillShare, 0, len(counts))
	for _, c := range counts {
		shares = append(shares, SkillShare{
			Skill:   c.Skill,
			Count:   c.Count,
			Percent: percent(c.Count, activeTotal),
		})
	}
	return shares
}

// splitByCategory regroups the ranking by the library's skill categories.
// Skills not in the library are left out of the per-category view.
func (g *Generator) splitByCategory(counts []db.SkillCount, activeTotal int) map[string][]SkillShare {
	if g.library == nil {
		return nil
	}

	byCategory := make(map[string][]SkillShare)
	for _, c := range counts {
		entry := g.library.Lookup(skills.NameKey(c.Skill))
		if entry == nil {
			continue
		}
		category := entry.Label.Category
		if len(byCategory[category]) >= g.topSkills {
			continue
		}
		byCategory[category] = append(byCategory[category], SkillShare{
			Skill:   c.Skill,
			Count:   c.Count,
			Percent: percent(c.Count, activeTotal),
		})
	}
	if len(byCategory) == 0 {
		return nil
	}
	return byCategory
}

func percent(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) * 100 / float64(total)
}
