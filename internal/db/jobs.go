package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Job Record Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, source, source_id, title, description, raw_text,
	postal_code, department, contract_type, payload, tags, processed, active,
	created_upstream, updated_upstream, collected_at, last_seen_at, processed_at, closed_at`

func scanJobRecord(row pgx.Row) (*JobRecord, error) {
	var r JobRecord
	err := row.Scan(&r.ID, &r.Source, &r.SourceID, &r.Title, &r.Description,
		&r.RawText, &r.PostalCode, &r.Department, &r.ContractType, &r.Payload,
		&r.Tags, &r.Processed, &r.Active, &r.CreatedUpstream, &r.UpdatedUpstream,
		&r.CollectedAt, &r.LastSeenAt, &r.ProcessedAt, &r.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertIfAbsent inserts a record keyed by (source, source_id) and reports
// whether a row was created. An existing row is left untouched except for
// last_seen_at, keeping the write idempotent.
func (db *DB) UpsertIfAbsent(ctx context.Context, r *JobRecord) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO job_records (source, source_id, title, description, raw_text,
		     postal_code, department, contract_type, payload, tags, processed, active,
		     created_upstream, updated_upstream, collected_at, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, $13, NOW(), NOW())
		 ON CONFLICT (source, source_id) DO NOTHING`,
		r.Source, r.SourceID, r.Title, r.Description, r.RawText,
		r.PostalCode, r.Department, r.ContractType, r.Payload, r.Tags, r.Processed,
		r.CreatedUpstream, r.UpdatedUpstream,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert job record %s: %w", r.SourceID, err)
	}

	created := tag.RowsAffected() > 0
	if !created {
		_, err = db.pool.Exec(ctx,
			`UPDATE job_records SET last_seen_at = NOW() WHERE source = $1 AND source_id = $2`,
			r.Source, r.SourceID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to touch job record %s: %w", r.SourceID, err)
		}
	}
	return created, nil
}

// BulkCloseByIDs marks the given records inactive and stamps closed_at.
// Already-closed records are not touched, so a closure happens exactly once.
func (db *DB) BulkCloseByIDs(ctx context.Context, source string, sourceIDs []string) (int, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE job_records SET active = FALSE, closed_at = NOW()
		 WHERE source = $1 AND source_id = ANY($2) AND active`,
		source, sourceIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close job records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReactivateByIDs reopens closed records that reappeared in an upstream fetch.
// Reactivated records are marked unprocessed so the next extraction refreshes
// their tags.
func (db *DB) ReactivateByIDs(ctx context.Context, source string, sourceIDs []string) (int, error) {
	if len(sourceIDs) == 0 {
		return 0, nil
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE job_records
		 SET active = TRUE, closed_at = NULL, processed = FALSE, last_seen_at = NOW()
		 WHERE source = $1 AND source_id = ANY($2) AND NOT active`,
		source, sourceIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reactivate job records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FindActiveIDs returns the set of source ids currently marked active.
func (db *DB) FindActiveIDs(ctx context.Context, source string) (map[string]struct{}, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT source_id FROM job_records WHERE source = $1 AND active`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to find active ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan active id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// FindKnownIDs returns which of the candidate source ids exist in the store,
// active or not. Used to distinguish true novelty from closed reappearances.
func (db *DB) FindKnownIDs(ctx context.Context, source string, candidates []string) (map[string]struct{}, error) {
	if len(candidates) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT source_id FROM job_records WHERE source = $1 AND source_id = ANY($2)`,
		source, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to find known ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan known id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListUnprocessed returns active records awaiting extraction. When all is
// true every active record is returned regardless of its processed flag
// (forced re-analysis). A limit of 0 means no limit.
func (db *DB) ListUnprocessed(ctx context.Context, source string, all bool, limit int) ([]JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM job_records WHERE source = $1 AND active`
	if !all {
		query += ` AND NOT processed`
	}
	query += ` ORDER BY collected_at ASC`
	args := []any{source}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed records: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		r, err := scanJobRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// UpdateJobTags replaces a record's tag set and marks it processed.
func (db *DB) UpdateJobTags(ctx context.Context, source, sourceID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	_, err := db.pool.Exec(ctx,
		`UPDATE job_records SET tags = $3, processed = TRUE, processed_at = NOW()
		 WHERE source = $1 AND source_id = $2`,
		source, sourceID, tags,
	)
	if err != nil {
		return fmt.Errorf("failed to update tags for %s: %w", sourceID, err)
	}
	return nil
}

// GetJobBySourceID retrieves one record, or nil when absent.
func (db *DB) GetJobBySourceID(ctx context.Context, source, sourceID string) (*JobRecord, error) {
	r, err := scanJobRecord(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_records WHERE source = $1 AND source_id = $2`,
		source, sourceID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return r, nil
}

// JobFilters holds optional filters for listing job records
type JobFilters struct {
	Source     string
	ActiveOnly bool
	Tag        string
	Department string
	Limit      int
}

// ListJobs retrieves records with optional filters, newest first.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]JobRecord, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM job_records WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argNum)
		args = append(args, filters.Source)
		argNum++
	}
	if filters.ActiveOnly {
		query += " AND active"
	}
	if filters.Tag != "" {
		query += fmt.Sprintf(" AND $%d = ANY(tags)", argNum)
		args = append(args, filters.Tag)
		argNum++
	}
	if filters.Department != "" {
		query += fmt.Sprintf(" AND department = $%d", argNum)
		args = append(args, filters.Department)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY collected_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	var records []JobRecord
	for rows.Next() {
		r, err := scanJobRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// JobCounts summarizes the store for one source.
type JobCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Processed int `json:"processed"`
	Tagged    int `json:"tagged"`
}

// CountJobs returns store counts for a source.
func (db *DB) CountJobs(ctx context.Context, source string) (*JobCounts, error) {
	var c JobCounts
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE active),
		        COUNT(*) FILTER (WHERE processed),
		        COUNT(*) FILTER (WHERE cardinality(tags) > 0)
		 FROM job_records WHERE source = $1`,
		source,
	).Scan(&c.Total, &c.Active, &c.Processed, &c.Tagged)
	if err != nil {
		return nil, fmt.Errorf("failed to count job records: %w", err)
	}
	return &c, nil
}

// MonthlyCount is the number of records first seen upstream in one month.
type MonthlyCount struct {
	Month string `json:"month"` // "2026-08"
	Count int    `json:"count"`
}

// MonthlyCounts returns record counts grouped by upstream creation month,
// falling back to collection time when the upstream date is unknown.
func (db *DB) MonthlyCounts(ctx context.Context, source string, since time.Time) ([]MonthlyCount, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT to_char(COALESCE(created_upstream, collected_at), 'YYYY-MM') AS month, COUNT(*)
		 FROM job_records
		 WHERE source = $1 AND COALESCE(created_upstream, collected_at) >= $2
		 GROUP BY month ORDER BY month`,
		source, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly counts: %w", err)
	}
	defer rows.Close()

	var counts []MonthlyCount
	for rows.Next() {
		var mc MonthlyCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan monthly count: %w", err)
		}
		counts = append(counts, mc)
	}
	return counts, rows.Err()
}

// SkillCount is the number of active records carrying one tag.
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

// SkillCounts returns per-tag counts over active records, most frequent first.
func (db *DB) SkillCounts(ctx context.Context, source string, limit int) ([]SkillCount, error) {
	query := `SELECT tag, COUNT(*) FROM job_records, unnest(tags) AS tag
		 WHERE source = $1 AND active
		 GROUP BY tag ORDER BY COUNT(*) DESC, tag`
	args := []any{source}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute skill counts: %w", err)
	}
	defer rows.Close()

	var counts []SkillCount
	for rows.Next() {
		var sc SkillCount
		if err := rows.Scan(&sc.Skill, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan skill count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}
