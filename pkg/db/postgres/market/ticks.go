package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

const (
	TicksTableName  = marketmodels.TicksTableName
	stagingTable    = marketmodels.TicksStagingTableName
	tickUniqueIndex = "minute_bars_code_time_key"
)

// initTicks creates the raw minute series table
func (db *DB) initTicks(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time TIMESTAMP NOT NULL,
			code TEXT NOT NULL,
			name TEXT,
			open NUMERIC(18,4) NOT NULL,
			high NUMERIC(18,4) NOT NULL,
			low NUMERIC(18,4) NOT NULL,
			close NUMERIC(18,4) NOT NULL,
			volume BIGINT NOT NULL,
			amount NUMERIC(24,4) NOT NULL,
			change_pct NUMERIC(12,4),
			amplitude NUMERIC(12,4),
			CONSTRAINT %s UNIQUE (code, time)
		)
	`, TicksTableName, tickUniqueIndex)

	return db.Exec(ctx, query)
}

// initHypertable partitions the raw series by time.
func (db *DB) initHypertable(ctx context.Context) error {
	query := `
		SELECT create_hypertable($1::text::regclass, 'time',
			chunk_time_interval => $2::text::interval,
			if_not_exists => TRUE,
			migrate_data => TRUE)
	`
	return db.Exec(ctx, query, TicksTableName, intervalLiteral(db.ChunkInterval))
}

// initCompression enables native compression segmented by code, newest first
// within a segment. ALTER ... SET fails once compressed chunks exist, so it
// only runs while compression is still off.
func (db *DB) initCompression(ctx context.Context) error {
	var enabled bool
	err := db.QueryRow(ctx, `
		SELECT compression_enabled
		FROM timescaledb_information.hypertables
		WHERE hypertable_schema = 'public' AND hypertable_name = $1
	`, TicksTableName).Scan(&enabled)
	if err != nil {
		return fmt.Errorf("read compression state: %w", err)
	}
	if enabled {
		return nil
	}

	db.Logger.Info("Enabling compression", zap.String("table", TicksTableName))
	query := fmt.Sprintf(`
		ALTER TABLE %s SET (
			timescaledb.compress,
			timescaledb.compress_segmentby = 'code',
			timescaledb.compress_orderby = 'time DESC'
		)
	`, TicksTableName)
	return db.Exec(ctx, query)
}

// CountTicks returns the number of rows in the raw series.
func (db *DB) CountTicks(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, TicksTableName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", TicksTableName, err)
	}
	return n, nil
}
