package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// maxQuarantinedRows bounds memory for files that are mostly garbage.
const maxQuarantinedRows = 100_000

// RejectedRow is one quarantined input line.
type RejectedRow struct {
	Member string `parquet:"member"`
	Line   int64  `parquet:"line"`
	Reason string `parquet:"reason"`
	Raw    string `parquet:"raw"`
}

// rejectSink collects rejected rows for one archive and writes them to
// <dir>/<archive>.rejects.parquet on Flush. A nil sink discards everything.
type rejectSink struct {
	path    string
	rows    []RejectedRow
	dropped int
}

func newRejectSink(dir, archive string) *rejectSink {
	if dir == "" {
		return nil
	}
	name := strings.TrimSuffix(archive, filepath.Ext(archive)) + ".rejects.parquet"
	return &rejectSink{path: filepath.Join(dir, name)}
}

func (s *rejectSink) Add(member string, line int64, reason string, fields []string) {
	if s == nil {
		return
	}
	if len(s.rows) >= maxQuarantinedRows {
		s.dropped++
		return
	}
	s.rows = append(s.rows, RejectedRow{
		Member: member,
		Line:   line,
		Reason: reason,
		Raw:    strings.Join(fields, ","),
	})
}

// Flush writes the quarantine file. A clean run removes any file left by an
// earlier attempt so the directory reflects the latest outcome only.
func (s *rejectSink) Flush() error {
	if s == nil {
		return nil
	}
	if len(s.rows) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale rejects %s: %w", s.path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create reject dir: %w", err)
	}
	if err := parquet.WriteFile(s.path, s.rows); err != nil {
		return fmt.Errorf("write rejects %s: %w", s.path, err)
	}
	return nil
}
