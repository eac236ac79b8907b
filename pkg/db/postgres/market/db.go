package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tickvault/tickvault/pkg/db/postgres"
	"github.com/tickvault/tickvault/pkg/retry"
)

// DB is the TimescaleDB store holding the raw minute series, the checkpoint
// table and the monthly rollup.
type DB struct {
	postgres.Client
	ChunkInterval time.Duration
}

// NewWithPoolConfig connects, then makes sure the schema exists.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, dsn string, chunkInterval time.Duration, poolConfig postgres.PoolConfig, retryConfig retry.Config) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("component", poolConfig.Component),
	), dsn, &poolConfig, retryConfig)
	if err != nil {
		return nil, err
	}

	marketDB := &DB{
		Client:        client,
		ChunkInterval: chunkInterval,
	}

	if err := marketDB.InitializeDB(ctx); err != nil {
		marketDB.Close()
		return nil, err
	}

	return marketDB, nil
}

// InitializeDB ensures the extension, the raw hypertable and the checkpoint
// table exist. Every step is idempotent.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"timescaledb", db.initExtension},
		{TicksTableName, db.initTicks},
		{TicksTableName + "_hypertable", db.initHypertable},
		{TicksTableName + "_compression", db.initCompression},
		{CheckpointsTableName, db.initCheckpoints},
	}

	// Order matters: the hypertable needs the table, compression needs the hypertable.
	for _, op := range initOps {
		db.Logger.Debug("Initializing", zap.String("object", op.name))
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Market database initialized",
		zap.Duration("chunk_interval", db.ChunkInterval),
		zap.Duration("duration", time.Since(initStart)))

	return nil
}

func (db *DB) initExtension(ctx context.Context) error {
	err := db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`)
	if err != nil && !postgres.IsAlreadyExists(err) {
		return err
	}
	return nil
}

// intervalLiteral renders d as a PostgreSQL interval literal usable with ::interval.
func intervalLiteral(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return fmt.Sprintf("%d milliseconds", d.Milliseconds())
}
