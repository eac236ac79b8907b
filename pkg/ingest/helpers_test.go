package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) OpenLoader(ctx context.Context) (Loader, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Loader), args.Error(1)
}

func (m *MockStore) UpsertCheckpoint(ctx context.Context, cp marketmodels.Checkpoint) error {
	args := m.Called(ctx, cp)
	return args.Error(0)
}

func (m *MockStore) ListCheckpoints(ctx context.Context) (map[string]marketmodels.Checkpoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]marketmodels.Checkpoint), args.Error(1)
}

type tickKey struct {
	code string
	time time.Time
}

// memStore keeps ticks keyed by (code, time) with first-write-wins semantics,
// mirroring the ON CONFLICT DO NOTHING merge.
type memStore struct {
	mu          sync.Mutex
	ticks       map[tickKey]marketmodels.Tick
	checkpoints map[string]marketmodels.Checkpoint
	batches     []int
	upserts     int

	loadErr       error
	checkpointErr error
	released      int
}

func newMemStore() *memStore {
	return &memStore{
		ticks:       make(map[tickKey]marketmodels.Tick),
		checkpoints: make(map[string]marketmodels.Checkpoint),
	}
}

func (s *memStore) OpenLoader(context.Context) (Loader, error) {
	return &memLoader{store: s}, nil
}

func (s *memStore) UpsertCheckpoint(_ context.Context, cp marketmodels.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.checkpointErr != nil {
		return s.checkpointErr
	}
	s.checkpoints[cp.Filename] = cp
	return nil
}

func (s *memStore) ListCheckpoints(context.Context) (map[string]marketmodels.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]marketmodels.Checkpoint, len(s.checkpoints))
	for k, v := range s.checkpoints {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) tickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func (s *memStore) checkpoint(t *testing.T, name string) marketmodels.Checkpoint {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[name]
	require.True(t, ok, "no checkpoint for %s", name)
	return cp
}

type memLoader struct {
	store *memStore
}

func (l *memLoader) LoadBatch(ctx context.Context, ticks []marketmodels.Tick) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := l.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return 0, s.loadErr
	}
	for _, tk := range ticks {
		if err := storable(tk); err != nil {
			return 0, err
		}
	}
	s.batches = append(s.batches, len(ticks))
	var inserted int64
	for _, tk := range ticks {
		k := tickKey{code: tk.Code, time: tk.Time}
		if _, ok := s.ticks[k]; ok {
			continue
		}
		s.ticks[k] = tk
		inserted++
	}
	return inserted, nil
}

// storable applies the column constraints PostgreSQL enforces during COPY.
// One offending tick fails the whole batch, as it does in staging.
func storable(tk marketmodels.Tick) error {
	for _, text := range []string{tk.Code, tk.Name} {
		if !utf8.ValidString(text) || strings.IndexByte(text, 0) >= 0 {
			return fmt.Errorf("invalid byte sequence for encoding \"UTF8\": %q", text)
		}
	}
	for _, p := range []float64{tk.Open, tk.High, tk.Low, tk.Close} {
		if p >= 1e14 || p <= -1e14 {
			return fmt.Errorf("numeric field overflow: %g", p)
		}
	}
	return nil
}

func (l *memLoader) Release() {
	l.store.mu.Lock()
	l.store.released++
	l.store.mu.Unlock()
}

type zipMember struct {
	name string
	body string
}

const testHeader = "时间,代码,名称,开盘,收盘,最高,最低,成交量,成交额,涨幅,振幅"

// csvRows returns n valid data rows for one code, one minute apart.
func csvRows(code string, n int) []string {
	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	out := make([]string, n)
	for i := range out {
		ts := base.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05")
		out[i] = fmt.Sprintf("%s,%s,PF Bank,10.00,10.05,10.10,9.95,%d,120600.50,0.50,1.49", ts, code, 1000+i)
	}
	return out
}

func csvBody(header string, rows ...string) string {
	return header + "\n" + strings.Join(rows, "\n") + "\n"
}

func writeZip(t *testing.T, dir, name string, members ...zipMember) SourceFile {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	return SourceFile{Name: name, Path: path, Size: info.Size(), ModTime: info.ModTime()}
}
