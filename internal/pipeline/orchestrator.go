// Package pipeline sequences the collect, extract and stats stages for one
// source, each gated by its own staleness clock and reported in a single
// completion summary.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/extract"
	"github.com/jonathan/job-harvester/internal/reconcile"
	"github.com/jonathan/job-harvester/internal/skills"
	"github.com/jonathan/job-harvester/internal/stats"
	"github.com/jonathan/job-harvester/internal/upstream"
)

// Collector fetches raw records for a query.
type Collector interface {
	Collect(ctx context.Context, query upstream.Query, maxRecords int) (*upstream.Result, error)
}

// JobStore is the slice of the store the collect stage persists through.
type JobStore interface {
	UpsertIfAbsent(ctx context.Context, r *db.JobRecord) (bool, error)
	BulkCloseByIDs(ctx context.Context, source string, sourceIDs []string) (int, error)
	ReactivateByIDs(ctx context.Context, source string, sourceIDs []string) (int, error)
	FindActiveIDs(ctx context.Context, source string) (map[string]struct{}, error)
	FindKnownIDs(ctx context.Context, source string, candidates []string) (map[string]struct{}, error)
}

// Extractor runs skill extraction over stored records.
type Extractor interface {
	Process(ctx context.Context, source string, force bool, limit int) (*extract.Result, error)
}

// StatsGenerator aggregates the store into a snapshot.
type StatsGenerator interface {
	Generate(ctx context.Context, source string) (*stats.Snapshot, error)
}

// Status is the tagged outcome of one stage.
type Status string

const (
	StatusRan     Status = "ran"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// StageReport describes one stage's outcome within a run.
type StageReport struct {
	Stage   string         `json:"stage"`
	Status  Status         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	LastRun *time.Time     `json:"last_run,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
	Err     error          `json:"-"`
}

// Error returns the stage failure message, empty when the stage did not fail.
func (r *StageReport) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON includes the error text, which the error interface value
// would otherwise drop.
func (r *StageReport) MarshalJSON() ([]byte, error) {
	type alias StageReport
	return json.Marshal(struct {
		*alias
		Error string `json:"error,omitempty"`
	}{(*alias)(r), r.Error()})
}

// Report is the terminal output of one orchestrator invocation.
type Report struct {
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stages     []*StageReport `json:"stages"`
}

// Failed reports whether any stage failed.
func (r *Report) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Options tunes one orchestrator run.
type Options struct {
	Query      upstream.Query
	MaxRecords int
	// RequireSkills drops collected records that match no skill pattern.
	// The resulting view is filtered, so closures are skipped.
	RequireSkills bool
	// Per-stage force flags bypass the staleness gates.
	ForceCollect bool
	ForceExtract bool
	ForceStats   bool
	// Staleness windows per stage.
	CollectWindow time.Duration
	ExtractWindow time.Duration
	StatsWindow   time.Duration
}

// Orchestrator drives the three stages in order. A later stage still runs
// when an earlier one was skipped or failed; each stage writes its marker
// only on success so a failed stage is retried next invocation.
type Orchestrator struct {
	source    string
	store     JobStore
	gate      *Gate
	collector Collector
	extractor Extractor
	stats     StatsGenerator

	// Matcher backs the RequireSkills collect option. Optional; with no
	// matcher set the option is ignored.
	Matcher *skills.Matcher

	// Logf receives stage-level progress. Defaults to a no-op.
	Logf func(format string, args ...any)
}

// NewOrchestrator wires the stages for one source.
func NewOrchestrator(source string, store JobStore, gate *Gate, collector Collector, extractor Extractor, statsGen StatsGenerator) *Orchestrator {
	return &Orchestrator{
		source:    source,
		store:     store,
		gate:      gate,
		collector: collector,
		extractor: extractor,
		stats:     statsGen,
		Logf:      func(string, ...any) {},
	}
}

// Run executes collect, extract and stats in order, each behind its own
// staleness gate, and returns the combined report. Run itself only errors
// on context cancellation; stage failures land in the report.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{Source: o.source, StartedAt: time.Now().UTC()}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	stages := []struct {
		name   string
		window time.Duration
		force  bool
		run    func(ctx context.Context) (map[string]int, error)
	}{
		{db.StageCollect, opts.CollectWindow, opts.ForceCollect, func(ctx context.Context) (map[string]int, error) {
			return o.runCollect(ctx, opts)
		}},
		{db.StageExtract, opts.ExtractWindow, opts.ForceExtract, func(ctx context.Context) (map[string]int, error) {
			return o.runExtract(ctx, opts.ForceExtract)
		}},
		{db.StageStats, opts.StatsWindow, opts.ForceStats, o.runStats},
	}

	for _, stage := range stages {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Stages = append(report.Stages, o.runStage(ctx, stage.name, stage.window, stage.force, stage.run))
	}
	return report, nil
}

func (o *Orchestrator) runStage(ctx context.Context, name string, window time.Duration, force bool, run func(ctx context.Context) (map[string]int, error)) *StageReport {
	sr := &StageReport{Stage: name}

	decision, err := o.gate.Check(ctx, name, o.source, window, force)
	if err != nil {
		sr.Status = StatusFailed
		sr.Err = err
		return sr
	}
	sr.Reason = decision.Reason
	sr.LastRun = decision.LastRun
	if !decision.Run {
		sr.Status = StatusSkipped
		o.Logf("stage %s skipped: %s", name, decision.Reason)
		return sr
	}

	o.Logf("stage %s running (%s)", name, decision.Reason)
	counts, err := run(ctx)
	sr.Counts = counts
	if err != nil {
		sr.Status = StatusFailed
		sr.Err = err
		o.Logf("stage %s failed: %v", name, err)
		return sr
	}

	summary := 0
	for _, v := range counts {
		summary += v
	}
	if err := o.gate.MarkRan(ctx, name, o.source, summary); err != nil {
		sr.Status = StatusFailed
		sr.Err = err
		return sr
	}
	sr.Status = StatusRan
	return sr
}

// CollectOnce runs just the collect stage, bypassing the staleness gate,
// and records its marker on success.
func (o *Orchestrator) CollectOnce(ctx context.Context, opts Options) (map[string]int, error) {
	return o.runStageOnce(ctx, db.StageCollect, func(ctx context.Context) (map[string]int, error) {
		return o.runCollect(ctx, opts)
	})
}

// ExtractOnce runs just the extract stage, bypassing the staleness gate.
func (o *Orchestrator) ExtractOnce(ctx context.Context, force bool) (map[string]int, error) {
	return o.runStageOnce(ctx, db.StageExtract, func(ctx context.Context) (map[string]int, error) {
		return o.runExtract(ctx, force)
	})
}

// StatsOnce runs just the stats stage, bypassing the staleness gate.
func (o *Orchestrator) StatsOnce(ctx context.Context) (map[string]int, error) {
	return o.runStageOnce(ctx, db.StageStats, o.runStats)
}

func (o *Orchestrator) runStageOnce(ctx context.Context, name string, run func(ctx context.Context) (map[string]int, error)) (map[string]int, error) {
	counts, err := run(ctx)
	if err != nil {
		return counts, err
	}
	summary := 0
	for _, v := range counts {
		summary += v
	}
	if err := o.gate.MarkRan(ctx, name, o.source, summary); err != nil {
		return counts, err
	}
	return counts, nil
}

// runCollect fetches, normalizes, reconciles and persists one collection.
// Closures and reactivations only apply on unfiltered full-source fetches.
func (o *Orchestrator) runCollect(ctx context.Context, opts Options) (map[string]int, error) {
	collected, err := o.collector.Collect(ctx, opts.Query, opts.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("collection failed: %w", err)
	}
	o.Logf("collected %d of %d upstream records (%d pages, %d failed)",
		len(collected.Records), collected.TotalUpstream, collected.PagesFetched, len(collected.FailedPages))

	skillFilter := opts.RequireSkills && o.Matcher != nil
	filteredOut := 0

	records := make([]*db.JobRecord, 0, len(collected.Records))
	fetchedIDs := make([]string, 0, len(collected.Records))
	for _, raw := range collected.Records {
		rec, err := upstream.ToJobRecord(o.source, raw)
		if err != nil {
			o.Logf("skipping malformed record: %v", err)
			continue
		}
		if skillFilter && len(o.Matcher.MatchAll(rec.RawText)) == 0 {
			filteredOut++
			continue
		}
		records = append(records, rec)
		fetchedIDs = append(fetchedIDs, rec.SourceID)
	}

	active, err := o.store.FindActiveIDs(ctx, o.source)
	if err != nil {
		return nil, fmt.Errorf("failed to load active ids: %w", err)
	}
	known, err := o.store.FindKnownIDs(ctx, o.source, fetchedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load known ids: %w", err)
	}

	outcome := reconcile.Reconcile(fetchedIDs, active, known)

	counts := map[string]int{
		"fetched":      len(fetchedIDs),
		"failed_pages": len(collected.FailedPages),
		"skipped":      len(outcome.ToSkip),
	}
	if skillFilter {
		counts["filtered_out"] = filteredOut
	}

	toCreate := make(map[string]struct{}, len(outcome.ToCreate))
	for _, id := range outcome.ToCreate {
		toCreate[id] = struct{}{}
	}
	created := 0
	for _, rec := range records {
		if _, ok := toCreate[rec.SourceID]; !ok {
			continue
		}
		wasNew, err := o.store.UpsertIfAbsent(ctx, rec)
		if err != nil {
			return counts, fmt.Errorf("failed to store record %s: %w", rec.SourceID, err)
		}
		if wasNew {
			created++
		}
	}
	counts["created"] = created

	if len(outcome.ToReactivate) > 0 {
		reactivated, err := o.store.ReactivateByIDs(ctx, o.source, outcome.ToReactivate)
		if err != nil {
			return counts, fmt.Errorf("failed to reactivate records: %w", err)
		}
		counts["reactivated"] = reactivated
	}

	// A filtered or partial fetch must not drive closures: absence from a
	// narrow or incomplete result does not mean the posting is gone.
	switch {
	case opts.Query.Filtered():
		o.Logf("filtered query, closures skipped")
	case skillFilter:
		o.Logf("skill filter active, closures skipped")
	case opts.MaxRecords > 0 && opts.MaxRecords < collected.TotalUpstream:
		o.Logf("record limit below upstream total, closures skipped")
	case collected.Partial():
		o.Logf("partial collection (%d failed pages), closures skipped", len(collected.FailedPages))
	case len(outcome.ToClose) > 0:
		closed, err := o.store.BulkCloseByIDs(ctx, o.source, outcome.ToClose)
		if err != nil {
			return counts, fmt.Errorf("failed to close records: %w", err)
		}
		counts["closed"] = closed
	}

	return counts, nil
}

func (o *Orchestrator) runExtract(ctx context.Context, force bool) (map[string]int, error) {
	res, err := o.extractor.Process(ctx, o.source, force, 0)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	counts := map[string]int{
		"analyzed":   res.Analyzed,
		"updated":    res.Updated,
		"detections": res.Detections,
	}
	if res.Failed > 0 {
		counts["failed_records"] = res.Failed
	}
	return counts, nil
}

func (o *Orchestrator) runStats(ctx context.Context) (map[string]int, error) {
	if o.stats == nil {
		return nil, fmt.Errorf("stats generator not configured")
	}
	snap, err := o.stats.Generate(ctx, o.source)
	if err != nil {
		return nil, fmt.Errorf("stats generation failed: %w", err)
	}
	return map[string]int{
		"active":     snap.Counts.Active,
		"top_skills": len(snap.TopSkills),
	}, nil
}
