package market

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/db/postgres"
)

const MonthlyViewName = marketmodels.MonthlyViewName

// DDLStatement is one idempotent step of the rollup definition.
type DDLStatement struct {
	Name string
	SQL  string
}

// MonthlyRollupDDL returns the statements defining the monthly continuous
// aggregate, its index and its refresh policy, in execution order.
//
// high/low take GREATEST/LEAST with open/close so an inconsistent raw row can
// never produce a bar whose high is below its open or close. The name is the
// last non-empty name seen in the month, which absorbs renames.
func MonthlyRollupDDL() []DDLStatement {
	return []DDLStatement{
		{
			Name: "view",
			SQL: fmt.Sprintf(`
				CREATE MATERIALIZED VIEW IF NOT EXISTS %[1]s
				WITH (timescaledb.continuous, timescaledb.materialized_only = false) AS
				SELECT
					code,
					time_bucket(INTERVAL '1 month', time) AS month,
					last(name, time) FILTER (WHERE name IS NOT NULL AND name <> '') AS name,
					first(open, time) AS open,
					max(GREATEST(high, open, close)) AS high,
					min(LEAST(low, open, close)) AS low,
					last(close, time) AS close,
					sum(volume)::BIGINT AS volume,
					sum(amount) AS amount
				FROM %[2]s
				GROUP BY code, month
				WITH NO DATA
			`, MonthlyViewName, TicksTableName),
		},
		{
			Name: "index",
			SQL: fmt.Sprintf(`
				CREATE INDEX IF NOT EXISTS idx_%[1]s_code_month
				ON %[1]s (code, month DESC)
			`, MonthlyViewName),
		},
		{
			Name: "policy",
			SQL: fmt.Sprintf(`
				SELECT add_continuous_aggregate_policy('%s',
					start_offset => INTERVAL '3 months',
					end_offset => INTERVAL '1 day',
					schedule_interval => INTERVAL '1 day',
					if_not_exists => TRUE)
			`, MonthlyViewName),
		},
	}
}

// MonthlyViewExists reports whether the continuous aggregate is defined.
func (db *DB) MonthlyViewExists(ctx context.Context) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM timescaledb_information.continuous_aggregates
			WHERE view_schema = 'public' AND view_name = $1
		)
	`, MonthlyViewName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", MonthlyViewName, err)
	}
	return exists, nil
}

// ExecDDL runs one statement in its own transaction. A failure rolls the
// transaction back and is returned to the caller, which decides whether it
// was an "already exists" no-op.
func (db *DB) ExecDDL(ctx context.Context, stmt DDLStatement) error {
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return applyDDL(ctx, tx, stmt)
	})
}

func applyDDL(ctx context.Context, ex postgres.Executor, stmt DDLStatement) error {
	_, err := ex.Exec(ctx, stmt.SQL)
	return err
}

// RefreshMonthlyView recomputes the whole history of the rollup. The
// procedure commits internally and refuses to run inside a transaction block,
// so it is sent on a dedicated connection over the simple protocol.
func (db *DB) RefreshMonthlyView(ctx context.Context) error {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for refresh: %w", err)
	}
	defer conn.Release()

	query := fmt.Sprintf(`CALL refresh_continuous_aggregate('%s', NULL, NULL)`, MonthlyViewName)
	if _, err := conn.Exec(ctx, query, pgx.QueryExecModeSimpleProtocol); err != nil {
		return fmt.Errorf("refresh %s: %w", MonthlyViewName, err)
	}
	return nil
}

// MonthlyBars reads the rollup for one code, oldest month first. The
// aggregate command prints it for a sample code.
func (db *DB) MonthlyBars(ctx context.Context, code string) ([]marketmodels.MonthlyBar, error) {
	query := fmt.Sprintf(`
		SELECT code, month, COALESCE(name, '') AS name, open, high, low, close, volume, amount
		FROM %s
		WHERE code = $1
		ORDER BY month
	`, MonthlyViewName)

	rows, err := db.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MonthlyViewName, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[marketmodels.MonthlyBar])
}
