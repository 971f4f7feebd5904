package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/job-harvester/internal/db"
)

// MarkerStore reads and writes per-stage run markers.
type MarkerStore interface {
	GetRunMarker(ctx context.Context, stage, source string) (*db.RunMarker, error)
	PutRunMarker(ctx context.Context, stage, source string, ranAt time.Time, summaryCount int) error
}

// Decision is the outcome of one staleness check.
type Decision struct {
	Run     bool
	Reason  string
	LastRun *time.Time
	Age     time.Duration
}

// Gate answers "should this stage run?" by comparing the stage's last
// successful run against its staleness window. A missing marker always
// means run now.
type Gate struct {
	store MarkerStore

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewGate creates a gate over the given marker store.
func NewGate(store MarkerStore) *Gate {
	return &Gate{store: store, Now: time.Now}
}

// Check decides whether the stage is due for the source. force bypasses the
// window unconditionally.
func (g *Gate) Check(ctx context.Context, stage, source string, window time.Duration, force bool) (*Decision, error) {
	if force {
		return &Decision{Run: true, Reason: "forced"}, nil
	}

	marker, err := g.store.GetRunMarker(ctx, stage, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read run marker for %s: %w", stage, err)
	}
	if marker == nil {
		return &Decision{Run: true, Reason: "never ran"}, nil
	}

	now := g.Now()
	decision := &Decision{
		LastRun: &marker.LastRunAt,
		Age:     marker.Age(now),
	}
	if marker.StaleAfter(now, window) {
		decision.Run = true
		decision.Reason = fmt.Sprintf("last run %s ago exceeds %s window", decision.Age.Round(time.Minute), window)
	} else {
		decision.Reason = fmt.Sprintf("ran %s ago, within %s window", decision.Age.Round(time.Minute), window)
	}
	return decision, nil
}

// MarkRan records a successful stage completion.
func (g *Gate) MarkRan(ctx context.Context, stage, source string, summaryCount int) error {
	if err := g.store.PutRunMarker(ctx, stage, source, g.Now().UTC(), summaryCount); err != nil {
		return fmt.Errorf("failed to write run marker for %s: %w", stage, err)
	}
	return nil
}
