package maintain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tickvault/tickvault/pkg/config"
	"github.com/tickvault/tickvault/pkg/db/postgres"
	pgmarket "github.com/tickvault/tickvault/pkg/db/postgres/market"
	"github.com/tickvault/tickvault/pkg/logging"
	"github.com/tickvault/tickvault/pkg/maintenance"
	"github.com/tickvault/tickvault/pkg/retry"
)

// App runs the maintenance jobs on demand or on a schedule.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *pgmarket.DB

	Aggregator *maintenance.Aggregator
	Compressor *maintenance.Compressor

	// Cron drives the daemon mode.
	Cron *cron.Cron

	// Jobs holds the last outcome of each scheduled job, served on /jobs.
	Jobs *xsync.Map[string, JobState]

	// Server is the daemon's health endpoint.
	Server *http.Server

	In  io.Reader
	Out io.Writer
}

// Initialize loads configuration and connects to the store.
func Initialize(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	poolConfig := postgres.GetPoolConfigForComponent("maintenance")
	marketDB, err := pgmarket.NewWithPoolConfig(ctx, logger, cfg.Database.URL, cfg.Database.ChunkInterval, *poolConfig, retry.FailFastConfig())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         marketDB,
		Aggregator: maintenance.NewAggregator(logger, marketDB),
		Compressor: maintenance.NewCompressor(logger, marketDB, maintenance.CompressorConfig{
			After:       cfg.Maintenance.CompressAfter,
			LockTimeout: cfg.Maintenance.CompressLockTimeout,
			Retries:     cfg.Maintenance.CompressRetries,
			Backoff:     cfg.Maintenance.CompressBackoff,
		}),
		Jobs: xsync.NewMap[string, JobState](),
		In:   os.Stdin,
		Out:  os.Stdout,
	}, nil
}

// Aggregate defines the monthly rollup and backfills it when needed. When
// sample names a code, the rollup rows for it are printed afterwards.
func (a *App) Aggregate(ctx context.Context, forceBackfill bool, sample string) error {
	report, err := a.Aggregator.Run(ctx, forceBackfill)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "Aggregation: %d applied, %d already present, backfilled=%t (%s)\n",
		report.Applied, report.AlreadyExisted, report.Backfilled, report.Duration)

	if sample == "" {
		return nil
	}
	bars, err := a.DB.MonthlyBars(ctx, sample)
	if err != nil {
		return err
	}
	PrintMonthlyBars(a.Out, sample, bars)
	return nil
}

// Compress sweeps old chunks. Chunks that failed for reasons other than lock
// contention make the command fail after the sweep.
func (a *App) Compress(ctx context.Context) error {
	report, err := a.Compressor.Run(ctx)
	if err != nil {
		// An interrupted sweep still shows what it got through.
		if report.Total > 0 {
			PrintCompressionReport(a.Out, report)
		}
		return err
	}
	PrintCompressionReport(a.Out, report)
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d chunks failed to compress", report.Failed, report.Total)
	}
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Logger.Sync()
}
