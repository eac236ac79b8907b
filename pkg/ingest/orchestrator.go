package ingest

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// FileProcessor is the unit of work run for each file.
type FileProcessor interface {
	ProcessFile(ctx context.Context, file SourceFile) FileResult
}

// ProgressFunc is called once per finished file with the number of files done
// so far. Calls may come from any worker goroutine.
type ProgressFunc func(done, total int, r FileResult)

// Orchestrator fans files out over a bounded worker pool.
type Orchestrator struct {
	logger    *zap.Logger
	processor FileProcessor
	workers   int
	progress  ProgressFunc
}

// NewOrchestrator builds an orchestrator. workers <= 0 means runtime.NumCPU().
// progress may be nil.
func NewOrchestrator(logger *zap.Logger, processor FileProcessor, workers int, progress ProgressFunc) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{
		logger:    logger,
		processor: processor,
		workers:   workers,
		progress:  progress,
	}
}

// Run processes every file and returns the aggregate summary. A failing or
// panicking file never affects its siblings. Files not yet started when ctx
// is cancelled are reported as failed without being attempted.
func (o *Orchestrator) Run(ctx context.Context, files []SourceFile) Summary {
	start := time.Now()
	total := len(files)

	results := xsync.NewMap[string, FileResult]()
	var done atomic.Int32

	workers := min(o.workers, max(total, 1))
	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	// A plain group: one task's failure must not cancel the others.
	group := pool.NewGroup()

	for _, file := range files {
		f := file
		group.Submit(func() {
			r := o.runOne(ctx, f)
			results.Store(f.Name, r)

			n := int(done.Add(1))
			if o.progress != nil {
				o.progress(n, total, r)
			}
		})
	}

	if err := group.Wait(); err != nil {
		o.logger.Warn("Worker group reported an error", zap.Error(err))
	}

	summary := Summary{Files: total}
	for _, f := range files {
		r, ok := results.Load(f.Name)
		if !ok {
			r = FileResult{Filename: f.Name, Status: marketmodels.StatusFailed, Err: fmt.Errorf("no result recorded")}
		}
		summary.Add(r)
	}
	summary.Duration = time.Since(start)
	return summary
}

func (o *Orchestrator) runOne(ctx context.Context, f SourceFile) (r FileResult) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("Panic while processing file",
				zap.String("file", f.Name),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			r = FileResult{
				Filename: f.Name,
				Status:   marketmodels.StatusFailed,
				Err:      fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return FileResult{
			Filename: f.Name,
			Status:   marketmodels.StatusFailed,
			Err:      fmt.Errorf("not started: %w", err),
		}
	}
	return o.processor.ProcessFile(ctx, f)
}
