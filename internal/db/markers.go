package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Pipeline Run Marker Methods
// -----------------------------------------------------------------------------

// GetRunMarker retrieves the marker for one (stage, source) pair, or nil when
// the stage has never completed for that source.
func (db *DB) GetRunMarker(ctx context.Context, stage, source string) (*RunMarker, error) {
	var m RunMarker
	err := db.pool.QueryRow(ctx,
		`SELECT stage, source, last_run_at, summary_count
		 FROM pipeline_run_markers WHERE stage = $1 AND source = $2`,
		stage, source,
	).Scan(&m.Stage, &m.Source, &m.LastRunAt, &m.SummaryCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run marker: %w", err)
	}
	return &m, nil
}

// PutRunMarker records a successful stage execution, overwriting any previous
// marker for the same (stage, source) pair.
func (db *DB) PutRunMarker(ctx context.Context, stage, source string, ranAt time.Time, summaryCount int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO pipeline_run_markers (stage, source, last_run_at, summary_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (stage, source) DO UPDATE SET last_run_at = $3, summary_count = $4`,
		stage, source, ranAt, summaryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to put run marker %s/%s: %w", stage, source, err)
	}
	return nil
}

// ListRunMarkers returns all markers for a source.
func (db *DB) ListRunMarkers(ctx context.Context, source string) ([]RunMarker, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT stage, source, last_run_at, summary_count
		 FROM pipeline_run_markers WHERE source = $1 ORDER BY stage`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run markers: %w", err)
	}
	defer rows.Close()

	var markers []RunMarker
	for rows.Next() {
		var m RunMarker
		if err := rows.Scan(&m.Stage, &m.Source, &m.LastRunAt, &m.SummaryCount); err != nil {
			return nil, fmt.Errorf("failed to scan run marker: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}
