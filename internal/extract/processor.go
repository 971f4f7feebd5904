// Package extract runs the skill pattern matcher over stored job records,
// persisting one detection per matched label and refreshing each record's
// tag set.
package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/skills"
)

// DefaultWorkers bounds the extraction pool. Records are independent, so
// the only shared state is the append-only detection sink.
const DefaultWorkers = 4

// Store is the slice of the job store extraction needs.
type Store interface {
	ListUnprocessed(ctx context.Context, source string, all bool, limit int) ([]db.JobRecord, error)
	InsertDetections(ctx context.Context, detections []db.Detection) (int, error)
	UpdateJobTags(ctx context.Context, source, sourceID string, tags []string) error
}

// Result summarizes one extraction pass.
type Result struct {
	Analyzed   int
	Updated    int
	Detections int
	// Failed counts records whose writes failed; their errors are in Errors.
	Failed int
	Errors []string
}

// Processor applies the matcher to unprocessed records.
type Processor struct {
	store   Store
	matcher *skills.Matcher
	workers int

	// Logf receives per-batch progress. Defaults to a no-op.
	Logf func(format string, args ...any)
}

// NewProcessor creates a processor running at most workers goroutines.
func NewProcessor(store Store, matcher *skills.Matcher, workers int) *Processor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Processor{
		store:   store,
		matcher: matcher,
		workers: workers,
		Logf:    func(string, ...any) {},
	}
}

// Process analyzes every unprocessed active record for the source. With
// force set, already-processed records are re-analyzed too. limit caps the
// batch when positive. Record-level write failures are counted and reported
// in the result rather than aborting the batch.
func (p *Processor) Process(ctx context.Context, source string, force bool, limit int) (*Result, error) {
	records, err := p.store.ListUnprocessed(ctx, source, force, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for extraction: %w", err)
	}

	result := &Result{}
	if len(records) == 0 {
		return result, nil
	}
	p.Logf("analyzing %d records with %d workers", len(records), p.workers)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			detections, tags := p.analyze(rec)

			err := p.persist(ctx, rec, detections, tags)

			mu.Lock()
			defer mu.Unlock()
			result.Analyzed++
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.SourceID, err))
				return nil
			}
			result.Updated++
			result.Detections += len(detections)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// analyze matches the record's text and builds the detection rows.
func (p *Processor) analyze(rec *db.JobRecord) ([]db.Detection, []string) {
	text := rec.RawText
	if text == "" {
		text = rec.Title + "\n" + rec.Description
	}

	labels := p.matcher.MatchAll(text)
	now := time.Now().UTC()

	detections := make([]db.Detection, 0, len(labels))
	tags := make([]string, 0, len(labels))
	for _, label := range labels {
		detections = append(detections, db.Detection{
			JobID:      rec.SourceID,
			Source:     rec.Source,
			Skill:      label.Name,
			Category:   label.Category,
			Confidence: 1.0,
			Method:     db.MethodPatternMatch,
			DetectedAt: now,
		})
		tags = append(tags, label.Name)
	}
	return detections, tags
}

func (p *Processor) persist(ctx context.Context, rec *db.JobRecord, detections []db.Detection, tags []string) error {
	if len(detections) > 0 {
		if _, err := p.store.InsertDetections(ctx, detections); err != nil {
			return fmt.Errorf("failed to insert detections: %w", err)
		}
	}
	if err := p.store.UpdateJobTags(ctx, rec.Source, rec.SourceID, tags); err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	return nil
}
