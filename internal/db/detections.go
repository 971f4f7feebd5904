package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Skill Detection Methods
// -----------------------------------------------------------------------------

// InsertDetections appends detection rows. Rows duplicating an existing
// (job_id, skill, method) triple are skipped, so re-running extraction over
// the same records is idempotent. Returns the number of rows written.
func (db *DB) InsertDetections(ctx context.Context, detections []Detection) (int, error) {
	if len(detections) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, d := range detections {
		batch.Queue(
			`INSERT INTO skill_detections (job_id, source, skill, category, confidence, method, detected_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (job_id, skill, method) DO NOTHING`,
			d.JobID, d.Source, d.Skill, d.Category, d.Confidence, d.Method, d.DetectedAt,
		)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for range detections {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert detection: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// CountDetections returns the number of detection rows for a source.
func (db *DB) CountDetections(ctx context.Context, source string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM skill_detections WHERE source = $1`, source,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count detections: %w", err)
	}
	return count, nil
}

// ListDetectionsByJob returns the detection log for one record, oldest first.
func (db *DB) ListDetectionsByJob(ctx context.Context, jobID string) ([]Detection, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_id, source, skill, category, confidence, method, detected_at
		 FROM skill_detections WHERE job_id = $1 ORDER BY detected_at ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.ID, &d.JobID, &d.Source, &d.Skill, &d.Category,
			&d.Confidence, &d.Method, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
