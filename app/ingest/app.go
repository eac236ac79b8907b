package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tickvault/tickvault/pkg/config"
	"github.com/tickvault/tickvault/pkg/db/postgres"
	pgmarket "github.com/tickvault/tickvault/pkg/db/postgres/market"
	"github.com/tickvault/tickvault/pkg/ingest"
	"github.com/tickvault/tickvault/pkg/logging"
	"github.com/tickvault/tickvault/pkg/redis"
	"github.com/tickvault/tickvault/pkg/retry"
)

// Options are the command line switches of the ingest binary.
type Options struct {
	ConfigPath    string
	RetryWarnings bool
	Force         bool
}

// App wires the ingest pipeline: scan, plan, fan out, report.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *pgmarket.DB
	Redis *redis.Client

	Scanner      *ingest.Scanner
	Orchestrator *ingest.Orchestrator

	// Out receives progress lines and the final summary.
	Out io.Writer
}

// Initialize loads configuration, connects to the store and builds the
// pipeline. Any error here is fatal.
func Initialize(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	poolConfig := postgres.GetPoolConfigForComponent("ingest", cfg.Ingest.Workers)
	marketDB, err := pgmarket.NewWithPoolConfig(ctx, logger, cfg.Database.URL, cfg.Database.ChunkInterval, *poolConfig, retry.FailFastConfig())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		DB:     marketDB,
		Out:    os.Stdout,
	}

	var notifier ingest.Notifier
	if cfg.Redis.Addr() != "" {
		rc, err := redis.NewClient(ctx, logger, cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, file events disabled", zap.Error(err))
		} else {
			app.Redis = rc
			notifier = rc
		}
	}

	store := ingest.NewPostgresStore(marketDB)
	validator := ingest.Validator{
		NormalizeCodes: cfg.Validation.NormalizeCodes,
		Limits: ingest.Limits{
			MaxPrice:     cfg.Validation.MaxPrice,
			MaxVolume:    cfg.Validation.MaxVolume,
			MaxAmount:    cfg.Validation.MaxAmount,
			MaxChangePct: cfg.Validation.MaxChangePct,
			MaxAmplitude: cfg.Validation.MaxAmplitude,
		},
	}
	processor := ingest.NewProcessor(logger, store, validator, ingest.ProcessorConfig{
		BatchSize:      cfg.Ingest.BatchSize,
		MaxSkippedRows: cfg.Ingest.MaxSkippedRows,
		MaxSkipRatio:   cfg.Ingest.MaxSkipRatio,
		RejectDir:      cfg.Ingest.RejectDir,
	}, notifier)

	app.Scanner = ingest.NewScanner(logger, store, cfg.Ingest.DataDir, ingest.PlanOptions{
		Force:          opts.Force,
		RetryWarnings:  opts.RetryWarnings,
		MtimeTolerance: cfg.Ingest.MtimeTolerance,
	})
	app.Orchestrator = ingest.NewOrchestrator(logger, processor, cfg.Ingest.Workers, app.printProgress)

	return app, nil
}

// Run plans and processes the data directory. Per-file failures are reported
// in the summary and the checkpoint table; only configuration and store
// errors, or an interrupted run, are returned.
func (a *App) Run(ctx context.Context) (ingest.Summary, error) {
	start := time.Now()

	plan, err := a.Scanner.Plan(ctx)
	if err != nil {
		return ingest.Summary{}, err
	}

	a.Logger.Info("Starting ingest",
		zap.String("data_dir", a.Config.Ingest.DataDir),
		zap.Int("workers", a.Config.Ingest.Workers),
		zap.Int("batch_size", a.Config.Ingest.BatchSize),
		zap.Int("to_process", len(plan.ToProcess)),
		zap.Int("up_to_date", len(plan.Skipped)))

	summary := a.Orchestrator.Run(ctx, plan.ToProcess)
	summary.Files = len(plan.ToProcess) + len(plan.Skipped)
	summary.SkippedFiles = len(plan.Skipped)
	summary.Duration = time.Since(start)

	PrintSummary(a.Out, summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("ingest interrupted: %w", err)
	}
	return summary, nil
}

func (a *App) printProgress(done, total int, r ingest.FileResult) {
	PrintProgress(a.Out, done, total, r)
}

// Close releases the store, Redis and flushes the logger.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Logger.Sync()
}
