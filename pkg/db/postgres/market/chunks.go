package market

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// ListCompressibleChunks returns uncompressed chunks of the raw series whose
// time range ended more than olderThan ago, oldest first.
func (db *DB) ListCompressibleChunks(ctx context.Context, olderThan time.Duration) ([]marketmodels.Chunk, error) {
	query := `
		SELECT chunk_schema, chunk_name, range_start, range_end
		FROM timescaledb_information.chunks
		WHERE hypertable_schema = 'public'
			AND hypertable_name = $1
			AND NOT is_compressed
			AND range_end < NOW() - $2::text::interval
		ORDER BY range_start
	`

	rows, err := db.Query(ctx, query, TicksTableName, intervalLiteral(olderThan))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	chunks, err := pgx.CollectRows(rows, pgx.RowToStructByName[marketmodels.Chunk])
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	return chunks, nil
}

// CompressChunk compresses one chunk on a dedicated autocommit connection
// with lock_timeout applied, so a chunk held by a writer fails fast instead
// of blocking the sweep.
func (db *DB) CompressChunk(ctx context.Context, chunk marketmodels.Chunk, lockTimeout time.Duration) error {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for %s: %w", chunk, err)
	}
	defer conn.Release()

	// SET cannot take bind parameters.
	setTimeout := fmt.Sprintf(`SET lock_timeout = %d`, lockTimeout.Milliseconds())
	if _, err := conn.Exec(ctx, setTimeout); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	defer func() {
		// The connection goes back to the pool; don't leak the setting.
		_, _ = conn.Exec(context.WithoutCancel(ctx), `RESET lock_timeout`)
	}()

	if _, err := conn.Exec(ctx, `SELECT compress_chunk($1::text::regclass)`, chunk.QualifiedName()); err != nil {
		return fmt.Errorf("compress %s: %w", chunk, err)
	}
	return nil
}
