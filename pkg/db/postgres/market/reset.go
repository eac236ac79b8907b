package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tickvault/tickvault/pkg/db/postgres"
)

// ResetAll truncates the raw series and the checkpoint table in one
// statement inside one transaction. Truncating only one of them would make
// the scanner skip files whose rows are gone, or reload files it already has.
func (db *DB) ResetAll(ctx context.Context) error {
	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return truncateAll(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("reset %s and %s: %w", TicksTableName, CheckpointsTableName, err)
	}

	db.Logger.Warn("Raw series and checkpoints truncated",
		zap.String("ticks", TicksTableName),
		zap.String("checkpoints", CheckpointsTableName))
	return nil
}

func truncateAll(ctx context.Context, ex postgres.Executor) error {
	_, err := ex.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s, %s`, TicksTableName, CheckpointsTableName))
	return err
}
