package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/db/postgres"
)

const CheckpointsTableName = marketmodels.CheckpointsTableName

// initCheckpoints creates the checkpoint table. The ADD COLUMN statements
// upgrade tables created before file fingerprints were recorded.
func (db *DB) initCheckpoints(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			filename TEXT PRIMARY KEY,
			processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			status TEXT NOT NULL CHECK (status IN ('SUCCESS', 'WARNING', 'FAILED')),
			skipped_lines INTEGER NOT NULL DEFAULT 0,
			error_msg TEXT
		);

		ALTER TABLE %[1]s ADD COLUMN IF NOT EXISTS file_size BIGINT;
		ALTER TABLE %[1]s ADD COLUMN IF NOT EXISTS last_modified TIMESTAMP WITH TIME ZONE;
		CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s(status);
	`, CheckpointsTableName)

	return db.Exec(ctx, query)
}

// UpsertCheckpoint records the latest attempt for a file, replacing any
// earlier one. It runs on a pool connection of its own, never on a worker
// session that may be stuck in an aborted transaction.
func (db *DB) UpsertCheckpoint(ctx context.Context, cp marketmodels.Checkpoint) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (filename, processed_at, status, skipped_lines, error_msg, file_size, last_modified)
		VALUES ($1, NOW(), $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO UPDATE SET
			processed_at = EXCLUDED.processed_at,
			status = EXCLUDED.status,
			skipped_lines = EXCLUDED.skipped_lines,
			error_msg = EXCLUDED.error_msg,
			file_size = EXCLUDED.file_size,
			last_modified = EXCLUDED.last_modified
	`, CheckpointsTableName)

	err := db.Exec(ctx, query,
		cp.Filename, string(cp.Status), cp.SkippedLines, cp.ErrorMsg, cp.FileSize, cp.LastModified,
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", cp.Filename, err)
	}
	return nil
}

// ListCheckpoints returns every checkpoint keyed by filename.
func (db *DB) ListCheckpoints(ctx context.Context) (map[string]marketmodels.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT filename, processed_at, status, skipped_lines, error_msg, file_size, last_modified
		FROM %s
	`, CheckpointsTableName)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[marketmodels.Checkpoint])
	if err != nil {
		return nil, fmt.Errorf("scan checkpoints: %w", err)
	}

	out := make(map[string]marketmodels.Checkpoint, len(list))
	for _, cp := range list {
		out[cp.Filename] = cp
	}
	return out, nil
}

// GetCheckpoint returns the checkpoint for filename, or nil when the file was
// never processed.
func (db *DB) GetCheckpoint(ctx context.Context, filename string) (*marketmodels.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT filename, processed_at, status, skipped_lines, error_msg, file_size, last_modified
		FROM %s
		WHERE filename = $1
	`, CheckpointsTableName)

	rows, err := db.Query(ctx, query, filename)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", filename, err)
	}
	cp, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[marketmodels.Checkpoint])
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan checkpoint %s: %w", filename, err)
	}
	return &cp, nil
}

// CountCheckpointsByStatus summarizes the checkpoint table.
func (db *DB) CountCheckpointsByStatus(ctx context.Context) ([]marketmodels.StatusCount, error) {
	query := fmt.Sprintf(`
		SELECT status, count(*) AS files
		FROM %s
		GROUP BY status
		ORDER BY status
	`, CheckpointsTableName)

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count checkpoints: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[marketmodels.StatusCount])
}

// RecentFailures returns the latest FAILED checkpoints, newest first.
func (db *DB) RecentFailures(ctx context.Context, limit int) ([]marketmodels.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT filename, processed_at, status, skipped_lines, error_msg, file_size, last_modified
		FROM %s
		WHERE status = $1
		ORDER BY processed_at DESC
		LIMIT $2
	`, CheckpointsTableName)

	rows, err := db.Query(ctx, query, string(marketmodels.StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[marketmodels.Checkpoint])
}
