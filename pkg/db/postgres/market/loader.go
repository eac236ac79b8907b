package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

var (
	tickColumnList = strings.Join(marketmodels.TickColumns, ", ")

	createStagingSQL = fmt.Sprintf(`
		CREATE TEMP TABLE IF NOT EXISTS %s
		(LIKE %s INCLUDING DEFAULTS)
		ON COMMIT DELETE ROWS
	`, stagingTable, TicksTableName)

	// First write wins: an existing (code, time) row is never touched.
	mergeStagingSQL = fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s FROM pg_temp.%s
		ON CONFLICT (code, time) DO NOTHING
	`, TicksTableName, tickColumnList, tickColumnList, stagingTable)
)

// Session is one worker's dedicated connection. The staging table lives in
// the connection's temp schema, so a session must not be shared between
// goroutines.
type Session struct {
	conn   *pgxpool.Conn
	logger *zap.Logger
	staged bool
}

// AcquireSession checks out a dedicated connection for one file.
// Caller MUST call Release.
func (db *DB) AcquireSession(ctx context.Context) (*Session, error) {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	return &Session{conn: conn, logger: db.Logger}, nil
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

// LoadBatch copies ticks into staging and merges them into the raw series in
// a single transaction. It returns the number of rows actually inserted;
// rows already present are skipped, so loading the same batch twice is a no-op.
func (s *Session) LoadBatch(ctx context.Context, ticks []marketmodels.Tick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		if !s.staged {
			if _, err := tx.Exec(ctx, createStagingSQL); err != nil {
				return fmt.Errorf("create staging: %w", err)
			}
		}

		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{stagingTable},
			marketmodels.TickColumns,
			pgx.CopyFromSlice(len(ticks), func(i int) ([]any, error) {
				return ticks[i].Values(), nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy into staging: %w", err)
		}
		if copied != int64(len(ticks)) {
			return fmt.Errorf("copy into staging: copied %d of %d rows", copied, len(ticks))
		}

		tag, err := tx.Exec(ctx, mergeStagingSQL)
		if err != nil {
			return fmt.Errorf("merge staging: %w", err)
		}
		inserted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	// The temp table only survives once the creating transaction committed.
	s.staged = true

	s.logger.Debug("Batch merged",
		zap.Int("rows", len(ticks)),
		zap.Int64("inserted", inserted),
		zap.Int64("conflicts", int64(len(ticks))-inserted))

	return inserted, nil
}
