package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// SourceSuffix identifies minute-bar archives in the data directory.
const SourceSuffix = "_1min.zip"

var (
	ErrDataDirMissing = errors.New("data directory does not exist")
	ErrNoSourceFiles  = errors.New("no source files found")
)

// PlanOptions control how checkpoints are compared.
type PlanOptions struct {
	Force          bool
	RetryWarnings  bool
	MtimeTolerance time.Duration
}

// Plan is the partition of discovered files.
type Plan struct {
	ToProcess []SourceFile
	Skipped   []SourceFile
}

// Scanner discovers archives and decides which need work.
type Scanner struct {
	logger  *zap.Logger
	store   Store
	dataDir string
	opts    PlanOptions
}

func NewScanner(logger *zap.Logger, store Store, dataDir string, opts PlanOptions) *Scanner {
	return &Scanner{logger: logger, store: store, dataDir: dataDir, opts: opts}
}

// Discover lists *_1min.zip files in the data directory sorted by name.
func Discover(dataDir string) ([]SourceFile, error) {
	info, err := os.Stat(dataDir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrDataDirMissing, dataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("stat data directory: %w", err)
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var files []SourceFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SourceSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		files = append(files, SourceFile{
			Name:    e.Name(),
			Path:    filepath.Join(dataDir, e.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (pattern *%s)", ErrNoSourceFiles, dataDir, SourceSuffix)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Plan discovers files and partitions them against stored checkpoints.
func (s *Scanner) Plan(ctx context.Context) (Plan, error) {
	files, err := Discover(s.dataDir)
	if err != nil {
		return Plan{}, err
	}

	var checkpoints map[string]marketmodels.Checkpoint
	if !s.opts.Force {
		checkpoints, err = s.store.ListCheckpoints(ctx)
		if err != nil {
			return Plan{}, fmt.Errorf("load checkpoints: %w", err)
		}
	}

	var plan Plan
	for _, f := range files {
		var cp *marketmodels.Checkpoint
		if c, ok := checkpoints[f.Name]; ok {
			cp = &c
		}
		process, reason := Decide(f, cp, s.opts)
		if process {
			plan.ToProcess = append(plan.ToProcess, f)
			s.logger.Debug("File scheduled", zap.String("file", f.Name), zap.String("reason", reason))
		} else {
			plan.Skipped = append(plan.Skipped, f)
			s.logger.Debug("File up to date", zap.String("file", f.Name))
		}
	}

	s.logger.Info("Scan complete",
		zap.Int("files", len(files)),
		zap.Int("to_process", len(plan.ToProcess)),
		zap.Int("skipped", len(plan.Skipped)))

	return plan, nil
}

// Decide reports whether file needs processing given its checkpoint, with a
// short reason for logging.
func Decide(file SourceFile, cp *marketmodels.Checkpoint, opts PlanOptions) (bool, string) {
	if opts.Force {
		return true, "forced"
	}
	if cp == nil {
		return true, "new"
	}

	switch cp.Status {
	case marketmodels.StatusSuccess:
	case marketmodels.StatusWarning:
		if opts.RetryWarnings {
			return true, "retry warning"
		}
	default:
		return true, "previous attempt failed"
	}

	if cp.FileSize == nil || cp.LastModified == nil {
		return true, "no recorded fingerprint"
	}
	if *cp.FileSize != file.Size {
		return true, "size changed"
	}
	drift := file.ModTime.Sub(*cp.LastModified)
	if drift < 0 {
		drift = -drift
	}
	if drift > opts.MtimeTolerance {
		return true, "modified"
	}
	return false, ""
}
