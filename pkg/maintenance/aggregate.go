package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tickvault/tickvault/pkg/db/postgres"
	pgmarket "github.com/tickvault/tickvault/pkg/db/postgres/market"
)

// BackfillHint is appended to aggregation errors.
const BackfillHint = "re-run with --force-backfill once the cause is fixed"

// RollupStore is the database surface of the aggregation job.
type RollupStore interface {
	MonthlyViewExists(ctx context.Context) (bool, error)
	ExecDDL(ctx context.Context, stmt pgmarket.DDLStatement) error
	RefreshMonthlyView(ctx context.Context) error
}

// AggregateReport describes one aggregation run.
type AggregateReport struct {
	ViewCreated    bool
	Applied        int
	AlreadyExisted int
	Backfilled     bool
	Duration       time.Duration
}

// Aggregator defines the monthly rollup and backfills it.
type Aggregator struct {
	logger     *zap.Logger
	store      RollupStore
	statements []pgmarket.DDLStatement
}

func NewAggregator(logger *zap.Logger, store RollupStore) *Aggregator {
	return &Aggregator{
		logger:     logger,
		store:      store,
		statements: pgmarket.MonthlyRollupDDL(),
	}
}

// Run applies the rollup DDL and then backfills the view when it was created
// by this run or forceBackfill is set. The backfill is never part of a
// transaction.
func (a *Aggregator) Run(ctx context.Context, forceBackfill bool) (AggregateReport, error) {
	start := time.Now()
	var report AggregateReport

	existed, err := a.store.MonthlyViewExists(ctx)
	if err != nil {
		return report, fmt.Errorf("check rollup: %w (%s)", err, BackfillHint)
	}

	for _, stmt := range a.statements {
		err := a.store.ExecDDL(ctx, stmt)
		switch {
		case err == nil:
			report.Applied++
			a.logger.Debug("Rollup DDL applied", zap.String("statement", stmt.Name))
		case postgres.IsAlreadyExists(err):
			report.AlreadyExisted++
			a.logger.Info("Rollup object already exists", zap.String("statement", stmt.Name))
		default:
			return report, fmt.Errorf("rollup %s: %w (%s)", stmt.Name, err, BackfillHint)
		}
	}
	report.ViewCreated = !existed

	if report.ViewCreated || forceBackfill {
		a.logger.Info("Backfilling monthly rollup",
			zap.Bool("view_created", report.ViewCreated),
			zap.Bool("forced", forceBackfill))
		if err := a.store.RefreshMonthlyView(ctx); err != nil {
			return report, fmt.Errorf("backfill: %w (%s)", err, BackfillHint)
		}
		report.Backfilled = true
	} else {
		a.logger.Info("Monthly rollup already defined, backfill skipped; the refresh policy keeps it current")
	}

	report.Duration = time.Since(start)
	a.logger.Info("Aggregation complete",
		zap.Int("applied", report.Applied),
		zap.Int("already_existed", report.AlreadyExisted),
		zap.Bool("backfilled", report.Backfilled),
		zap.Duration("duration", report.Duration))

	return report, nil
}
