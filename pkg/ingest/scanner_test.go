package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

func ptr[T any](v T) *T { return &v }

func TestDecide(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	file := SourceFile{Name: "a_1min.zip", Size: 1024, ModTime: mtime}
	opts := PlanOptions{MtimeTolerance: 2 * time.Second}

	checkpoint := func(status marketmodels.CheckpointStatus, size int64, mt time.Time) *marketmodels.Checkpoint {
		return &marketmodels.Checkpoint{Filename: file.Name, Status: status, FileSize: &size, LastModified: &mt}
	}

	tests := []struct {
		name    string
		cp      *marketmodels.Checkpoint
		opts    PlanOptions
		process bool
	}{
		{name: "no checkpoint", cp: nil, opts: opts, process: true},
		{name: "success unchanged", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime), opts: opts, process: false},
		{name: "warning unchanged", cp: checkpoint(marketmodels.StatusWarning, 1024, mtime), opts: opts, process: false},
		{name: "warning with retry", cp: checkpoint(marketmodels.StatusWarning, 1024, mtime),
			opts: PlanOptions{MtimeTolerance: 2 * time.Second, RetryWarnings: true}, process: true},
		{name: "failed", cp: checkpoint(marketmodels.StatusFailed, 1024, mtime), opts: opts, process: true},
		{name: "size changed", cp: checkpoint(marketmodels.StatusSuccess, 1023, mtime), opts: opts, process: true},
		{name: "mtime within tolerance before", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime.Add(-2*time.Second)), opts: opts, process: false},
		{name: "mtime within tolerance after", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime.Add(2*time.Second)), opts: opts, process: false},
		{name: "mtime beyond tolerance before", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime.Add(-2001*time.Millisecond)), opts: opts, process: true},
		{name: "mtime beyond tolerance after", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime.Add(3*time.Second)), opts: opts, process: true},
		{name: "legacy row without size", cp: &marketmodels.Checkpoint{Status: marketmodels.StatusSuccess, LastModified: &mtime}, opts: opts, process: true},
		{name: "legacy row without mtime", cp: &marketmodels.Checkpoint{Status: marketmodels.StatusSuccess, FileSize: ptr(int64(1024))}, opts: opts, process: true},
		{name: "force", cp: checkpoint(marketmodels.StatusSuccess, 1024, mtime),
			opts: PlanOptions{Force: true, MtimeTolerance: 2 * time.Second}, process: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			process, reason := Decide(file, tt.cp, tt.opts)
			assert.Equal(t, tt.process, process)
			if process {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := Discover(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrDataDirMissing)
	})

	t.Run("path is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		_, err := Discover(path)
		assert.ErrorIs(t, err, ErrDataDirMissing)
	})

	t.Run("no matching files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a_5min.zip"), nil, 0o644))
		_, err := Discover(dir)
		assert.ErrorIs(t, err, ErrNoSourceFiles)
	})

	t.Run("sorted matches only", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"sz000001_1min.zip", "sh600000_1min.zip", "readme.md", "bj430047_1min.zip"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "dir_1min.zip"), 0o755))

		files, err := Discover(dir)
		require.NoError(t, err)
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name
		}
		assert.Equal(t, []string{"bj430047_1min.zip", "sh600000_1min.zip", "sz000001_1min.zip"}, names)
		assert.Equal(t, int64(1), files[0].Size)
		assert.Equal(t, filepath.Join(dir, "bj430047_1min.zip"), files[0].Path)
	})
}

func TestScannerPlan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a_1min.zip", "b_1min.zip", "c_1min.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}
	files, err := Discover(dir)
	require.NoError(t, err)

	done := marketmodels.Checkpoint{
		Filename:     "a_1min.zip",
		Status:       marketmodels.StatusSuccess,
		FileSize:     ptr(files[0].Size),
		LastModified: ptr(files[0].ModTime),
	}
	failed := marketmodels.Checkpoint{
		Filename:     "b_1min.zip",
		Status:       marketmodels.StatusFailed,
		FileSize:     ptr(files[1].Size),
		LastModified: ptr(files[1].ModTime),
	}

	t.Run("uses checkpoints", func(t *testing.T) {
		store := &MockStore{}
		store.On("ListCheckpoints", mock.Anything).Return(map[string]marketmodels.Checkpoint{
			done.Filename:   done,
			failed.Filename: failed,
		}, nil).Once()

		plan, err := NewScanner(zaptest.NewLogger(t), store, dir, PlanOptions{MtimeTolerance: 2 * time.Second}).
			Plan(context.Background())
		require.NoError(t, err)

		require.Len(t, plan.Skipped, 1)
		assert.Equal(t, "a_1min.zip", plan.Skipped[0].Name)
		require.Len(t, plan.ToProcess, 2)
		assert.Equal(t, "b_1min.zip", plan.ToProcess[0].Name)
		assert.Equal(t, "c_1min.zip", plan.ToProcess[1].Name)
		store.AssertExpectations(t)
	})

	t.Run("force skips the checkpoint lookup", func(t *testing.T) {
		store := &MockStore{}

		plan, err := NewScanner(zaptest.NewLogger(t), store, dir, PlanOptions{Force: true}).Plan(context.Background())
		require.NoError(t, err)

		assert.Len(t, plan.ToProcess, 3)
		assert.Empty(t, plan.Skipped)
		store.AssertNotCalled(t, "ListCheckpoints", mock.Anything)
	})

	t.Run("checkpoint load failure", func(t *testing.T) {
		store := &MockStore{}
		store.On("ListCheckpoints", mock.Anything).Return(nil, errors.New("relation does not exist")).Once()

		_, err := NewScanner(zaptest.NewLogger(t), store, dir, PlanOptions{}).Plan(context.Background())
		assert.ErrorContains(t, err, "load checkpoints")
	})
}
