package ingest

import (
	"context"
	"time"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// SourceFile is one discovered archive with the fingerprint observed at scan
// time.
type SourceFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// FileResult is the outcome of processing one archive.
type FileResult struct {
	Filename string
	Status   marketmodels.CheckpointStatus
	Total    int   // data rows read, accepted plus skipped
	Loaded   int   // accepted rows handed to the loader
	Inserted int64 // rows that were new to the store
	Skipped  int
	Err      error
	Duration time.Duration
}

// Summary aggregates one ingest run.
type Summary struct {
	Files        int
	Processed    int
	SkippedFiles int
	Success      int
	Warning      int
	Failed       int
	RowsLoaded   int64
	RowsInserted int64
	RowsSkipped  int64
	Duration     time.Duration
	Failures     []FileResult
}

// Add folds one file result into the summary.
func (s *Summary) Add(r FileResult) {
	s.Processed++
	s.RowsLoaded += int64(r.Loaded)
	s.RowsInserted += r.Inserted
	s.RowsSkipped += int64(r.Skipped)
	switch r.Status {
	case marketmodels.StatusSuccess:
		s.Success++
	case marketmodels.StatusWarning:
		s.Warning++
	default:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}

// Loader merges batches of ticks over one dedicated connection.
type Loader interface {
	LoadBatch(ctx context.Context, ticks []marketmodels.Tick) (int64, error)
	Release()
}

// Store is the persistence surface the ingest pipeline needs.
type Store interface {
	OpenLoader(ctx context.Context) (Loader, error)
	UpsertCheckpoint(ctx context.Context, cp marketmodels.Checkpoint) error
	ListCheckpoints(ctx context.Context) (map[string]marketmodels.Checkpoint, error)
}

// Notifier receives finalized file results. Delivery is best-effort.
type Notifier interface {
	PublishFileResult(ctx context.Context, r FileResult) error
}
