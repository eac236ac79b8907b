package ingest

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/utils"
)

const (
	// loggedRejectLimit is how many reject reasons are logged per file.
	loggedRejectLimit = 10

	// cancelCheckInterval is how often the row loop polls the context.
	cancelCheckInterval = 4096

	defaultCheckpointTimeout = 30 * time.Second
)

var ErrNoCSVMembers = errors.New("archive contains no CSV members")

// ProcessorConfig holds the per-file batching and failure policy.
type ProcessorConfig struct {
	BatchSize         int
	MaxSkippedRows    int
	MaxSkipRatio      float64
	RejectDir         string
	CheckpointTimeout time.Duration
}

// Processor ingests one archive at a time. It is safe for concurrent use;
// all per-file state lives on the stack of ProcessFile.
type Processor struct {
	logger    *zap.Logger
	store     Store
	validator Validator
	cfg       ProcessorConfig
	notifier  Notifier
}

// NewProcessor builds a processor. notifier may be nil.
func NewProcessor(logger *zap.Logger, store Store, validator Validator, cfg ProcessorConfig, notifier Notifier) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50_000
	}
	if cfg.CheckpointTimeout <= 0 {
		cfg.CheckpointTimeout = defaultCheckpointTimeout
	}
	return &Processor{
		logger:    logger,
		store:     store,
		validator: validator,
		cfg:       cfg,
		notifier:  notifier,
	}
}

// fileRun is the mutable state of one ProcessFile call.
type fileRun struct {
	p       *Processor
	logger  *zap.Logger
	loader  Loader
	rejects *rejectSink
	batch   []marketmodels.Tick

	total    int
	loaded   int
	inserted int64
	skipped  int
}

// ProcessFile loads one archive and records exactly one checkpoint for the
// attempt. Row and file errors are reported in the result, never returned.
func (p *Processor) ProcessFile(ctx context.Context, file SourceFile) FileResult {
	start := time.Now()
	logger := p.logger.With(zap.String("file", file.Name))

	run := &fileRun{
		p:       p,
		logger:  logger,
		rejects: newRejectSink(p.cfg.RejectDir, file.Name),
	}

	err := run.process(ctx, file)
	res := run.finalize(err)
	res.Filename = file.Name
	res.Duration = time.Since(start)

	if err := run.rejects.Flush(); err != nil {
		logger.Warn("Failed to write rejected rows", zap.Error(err))
	}

	p.writeCheckpoint(ctx, logger, file, res)
	p.notify(ctx, logger, res)

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("total", res.Total),
		zap.Int("loaded", res.Loaded),
		zap.Int64("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration),
	}
	switch res.Status {
	case marketmodels.StatusSuccess:
		logger.Info("File processed", fields...)
	case marketmodels.StatusWarning:
		logger.Warn("File processed with skipped rows", fields...)
	default:
		logger.Error("File failed", append(fields, zap.Error(res.Err))...)
	}
	return res
}

func (r *fileRun) process(ctx context.Context, file SourceFile) error {
	zr, err := zip.OpenReader(file.Path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	members := csvMembers(&zr.Reader)
	if len(members) == 0 {
		return ErrNoCSVMembers
	}

	loader, err := r.p.store.OpenLoader(ctx)
	if err != nil {
		return fmt.Errorf("open loader: %w", err)
	}
	defer loader.Release()
	r.loader = loader
	r.batch = make([]marketmodels.Tick, 0, r.p.cfg.BatchSize)

	for _, member := range members {
		if err := r.processMember(ctx, member); err != nil {
			return err
		}
	}
	return r.flush(ctx)
}

func (r *fileRun) processMember(ctx context.Context, member *zip.File) error {
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", member.Name, err)
	}

	if err := r.readMember(ctx, member.Name, newCSVReader(rc)); err != nil {
		_ = rc.Close()
		return err
	}

	// Draining to EOF makes archive/zip verify the member checksum.
	if err := utils.DrainAndClose(rc); err != nil {
		return fmt.Errorf("read member %s: %w", member.Name, err)
	}
	return nil
}

func (r *fileRun) readMember(ctx context.Context, name string, cr *csv.Reader) error {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		r.logger.Warn("Empty CSV member", zap.String("member", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", name, err)
	}
	if err := CheckHeader(stripBOM(header)); err != nil {
		return fmt.Errorf("member %s: %w", name, err)
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		var parseErr *csv.ParseError
		switch {
		case errors.As(err, &parseErr):
			r.total++
			r.reject(name, int64(parseErr.StartLine), parseErr.Err.Error(), nil)
			continue
		case err != nil:
			return fmt.Errorf("read %s: %w", name, err)
		}

		r.total++
		if r.total%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("interrupted: %w", err)
			}
		}

		res := r.p.validator.Validate(fields)
		if !res.OK() {
			line, _ := cr.FieldPos(0)
			r.reject(name, int64(line), res.Reason, fields)
			continue
		}

		r.batch = append(r.batch, res.Tick)
		if len(r.batch) >= r.p.cfg.BatchSize {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *fileRun) reject(member string, line int64, reason string, fields []string) {
	r.skipped++
	if r.skipped <= loggedRejectLimit {
		r.logger.Warn("Row rejected",
			zap.String("member", member),
			zap.Int64("line", line),
			zap.String("reason", reason))
	} else if r.skipped == loggedRejectLimit+1 {
		r.logger.Warn("Further row rejections are counted but not logged")
	}
	r.rejects.Add(member, line, reason, fields)
}

func (r *fileRun) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	inserted, err := r.loader.LoadBatch(ctx, r.batch)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	r.loaded += len(r.batch)
	r.inserted += inserted
	r.batch = r.batch[:0]
	return nil
}

// finalize applies the file policy. Rows already merged stay merged whatever
// the outcome.
func (r *fileRun) finalize(err error) FileResult {
	res := FileResult{
		Total:    r.total,
		Loaded:   r.loaded,
		Inserted: r.inserted,
		Skipped:  r.skipped,
	}
	res.Status, res.Err = Classify(r.total, r.skipped, r.p.cfg.MaxSkippedRows, r.p.cfg.MaxSkipRatio)
	if err != nil {
		res.Status = marketmodels.StatusFailed
		res.Err = err
	}
	return res
}

// ErrTooManySkipped marks a file that parsed but exceeded the reject
// tolerance.
var ErrTooManySkipped = errors.New("too many skipped rows")

// Classify maps row counts to a file status. A ratio exactly at maxRatio is
// within tolerance.
func Classify(total, skipped, maxSkipped int, maxRatio float64) (marketmodels.CheckpointStatus, error) {
	if skipped == 0 {
		return marketmodels.StatusSuccess, nil
	}
	if skipped > maxSkipped {
		return marketmodels.StatusFailed,
			fmt.Errorf("%w: %d exceeds limit %d", ErrTooManySkipped, skipped, maxSkipped)
	}
	if total > 0 && float64(skipped) > maxRatio*float64(total) {
		return marketmodels.StatusFailed,
			fmt.Errorf("%w: %d of %d rows exceeds ratio %g", ErrTooManySkipped, skipped, total, maxRatio)
	}
	return marketmodels.StatusWarning, nil
}

// writeCheckpoint records the attempt on a fresh pool connection. It still
// runs after the run context was cancelled so interrupted files are marked
// FAILED. Failures are logged only.
func (p *Processor) writeCheckpoint(ctx context.Context, logger *zap.Logger, file SourceFile, res FileResult) {
	cp := marketmodels.Checkpoint{
		Filename:     file.Name,
		Status:       res.Status,
		SkippedLines: res.Skipped,
	}
	if res.Err != nil {
		msg := res.Err.Error()
		cp.ErrorMsg = &msg
	}
	// Fingerprint of the file as it is now, so a file replaced mid-run is
	// picked up again next time.
	if info, err := os.Stat(file.Path); err == nil {
		size := info.Size()
		mtime := info.ModTime()
		cp.FileSize = &size
		cp.LastModified = &mtime
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CheckpointTimeout)
	defer cancel()

	if err := p.store.UpsertCheckpoint(wctx, cp); err != nil {
		logger.Error("Failed to write checkpoint", zap.Error(err))
	}
}

func (p *Processor) notify(ctx context.Context, logger *zap.Logger, res FileResult) {
	if p.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.notifier.PublishFileResult(nctx, res); err != nil {
		logger.Debug("Failed to publish file result", zap.Error(err))
	}
}
