package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/db/postgres"
	"github.com/tickvault/tickvault/pkg/retry"
)

// ChunkStore is the database surface of the compression sweep.
type ChunkStore interface {
	ListCompressibleChunks(ctx context.Context, olderThan time.Duration) ([]marketmodels.Chunk, error)
	CompressChunk(ctx context.Context, chunk marketmodels.Chunk, lockTimeout time.Duration) error
}

// ChunkOutcome classifies one chunk of a sweep.
type ChunkOutcome string

const (
	OutcomeCompressed ChunkOutcome = "compressed"
	OutcomeSkipped    ChunkOutcome = "skipped"
	OutcomeRetryable  ChunkOutcome = "retryable"
	OutcomeFailed     ChunkOutcome = "failed"
)

// ChunkResult is the outcome of one chunk.
type ChunkResult struct {
	Chunk    string
	Outcome  ChunkOutcome
	Duration time.Duration
	Error    string
}

// CompressionReport summarizes a sweep.
type CompressionReport struct {
	Total      int
	Compressed int
	Skipped    int
	Retryable  int
	Failed     int
	Duration   time.Duration
	Results    []ChunkResult
}

// CompressorConfig controls chunk age, lock waits and retries.
type CompressorConfig struct {
	After       time.Duration
	LockTimeout time.Duration
	Retries     int
	Backoff     time.Duration
}

// Compressor compresses old chunks one at a time.
type Compressor struct {
	logger *zap.Logger
	store  ChunkStore
	cfg    CompressorConfig
}

func NewCompressor(logger *zap.Logger, store ChunkStore, cfg CompressorConfig) *Compressor {
	return &Compressor{logger: logger, store: store, cfg: cfg}
}

// Run sweeps every eligible chunk. Per-chunk failures are counted and the
// sweep moves on; only a listing failure or cancellation is returned.
func (c *Compressor) Run(ctx context.Context) (CompressionReport, error) {
	start := time.Now()
	var report CompressionReport

	chunks, err := c.store.ListCompressibleChunks(ctx, c.cfg.After)
	if err != nil {
		return report, fmt.Errorf("list compressible chunks: %w", err)
	}
	report.Total = len(chunks)

	c.logger.Info("Starting compression sweep",
		zap.Int("chunks", len(chunks)),
		zap.Duration("older_than", c.cfg.After))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("compression sweep interrupted after %d of %d chunks: %w", i, len(chunks), err)
		}

		result, err := c.compressOne(ctx, chunk)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("compression sweep interrupted after %d of %d chunks: %w", i, len(chunks), err)
		}
		report.Results = append(report.Results, result)

		switch result.Outcome {
		case OutcomeCompressed:
			report.Compressed++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeRetryable:
			report.Retryable++
		default:
			report.Failed++
		}
	}

	report.Duration = time.Since(start)
	c.logger.Info("Compression sweep complete",
		zap.Int("total", report.Total),
		zap.Int("compressed", report.Compressed),
		zap.Int("skipped", report.Skipped),
		zap.Int("retryable", report.Retryable),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// compressOne classifies one chunk. It returns an error only when ctx ended
// during the attempt, in which case the chunk has no outcome.
func (c *Compressor) compressOne(ctx context.Context, chunk marketmodels.Chunk) (ChunkResult, error) {
	start := time.Now()
	name := chunk.String()

	cfg := retry.FixedConfig(c.cfg.Retries+1, c.cfg.Backoff)
	err := retry.WithBackoff(ctx, cfg, c.logger, "compress "+name, func() error {
		err := c.store.CompressChunk(ctx, chunk, c.cfg.LockTimeout)
		if err == nil || postgres.IsLockContention(err) {
			return err
		}
		return retry.Permanent(err)
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Warn("Chunk compression interrupted", zap.String("chunk", name), zap.Error(err))
			return ChunkResult{}, ctxErr
		}
	}

	result := ChunkResult{Chunk: name, Duration: time.Since(start)}
	switch {
	case err == nil:
		result.Outcome = OutcomeCompressed
		c.logger.Info("Chunk compressed", zap.String("chunk", name), zap.Duration("duration", result.Duration))
	case postgres.IsAlreadyCompressed(err):
		result.Outcome = OutcomeSkipped
		c.logger.Info("Chunk already compressed", zap.String("chunk", name))
	case postgres.IsLockContention(err):
		result.Outcome = OutcomeRetryable
		result.Error = err.Error()
		c.logger.Warn("Chunk busy, left for the next sweep", zap.String("chunk", name), zap.Error(err))
	default:
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		c.logger.Error("Chunk compression failed", zap.String("chunk", name), zap.Error(err))
	}
	return result, nil
}
