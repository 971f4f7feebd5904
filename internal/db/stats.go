package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// Statistics Snapshot Methods
// -----------------------------------------------------------------------------

// SaveStatsSnapshot stores an aggregate statistics document for a source and
// period, replacing any snapshot already stored for that pair.
func (db *DB) SaveStatsSnapshot(ctx context.Context, source, period string, payload []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO stats_snapshots (source, period, payload, generated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (source, period) DO UPDATE SET payload = $3, generated_at = NOW()`,
		source, period, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats snapshot %s/%s: %w", source, period, err)
	}
	return nil
}

// LatestStatsSnapshot returns the most recently generated snapshot for a
// source, or nil when none exists.
func (db *DB) LatestStatsSnapshot(ctx context.Context, source string) (*StatsSnapshot, error) {
	var s StatsSnapshot
	err := db.pool.QueryRow(ctx,
		`SELECT id, source, period, payload, generated_at
		 FROM stats_snapshots WHERE source = $1
		 ORDER BY generated_at DESC LIMIT 1`,
		source,
	).Scan(&s.ID, &s.Source, &s.Period, &s.Payload, &s.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats snapshot: %w", err)
	}
	return &s, nil
}
