package ingest

import (
	"fmt"
	"io"
	"sync"
	"time"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/ingest"
)

var outMu sync.Mutex

// PrintProgress writes one line per finished file. Safe for concurrent use.
func PrintProgress(w io.Writer, done, total int, r ingest.FileResult) {
	line := fmt.Sprintf("[%d/%d] %s %s loaded=%d inserted=%d skipped=%d (%s)",
		done, total, r.Filename, r.Status, r.Loaded, r.Inserted, r.Skipped, r.Duration.Round(time.Millisecond))
	if r.Err != nil && r.Status == marketmodels.StatusFailed {
		line += ": " + r.Err.Error()
	}

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = fmt.Fprintln(w, line)
}

// PrintSummary writes the end-of-run report.
func PrintSummary(w io.Writer, s ingest.Summary) {
	outMu.Lock()
	defer outMu.Unlock()

	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Ingest summary")
	_, _ = fmt.Fprintf(w, "  files:     %d total, %d processed, %d up to date\n", s.Files, s.Processed, s.SkippedFiles)
	_, _ = fmt.Fprintf(w, "  outcome:   %d success, %d warning, %d failed\n", s.Success, s.Warning, s.Failed)
	_, _ = fmt.Fprintf(w, "  rows:      %d loaded, %d new, %d skipped\n", s.RowsLoaded, s.RowsInserted, s.RowsSkipped)
	_, _ = fmt.Fprintf(w, "  duration:  %s\n", s.Duration.Round(time.Millisecond))

	if len(s.Failures) > 0 {
		_, _ = fmt.Fprintln(w, "  failed files:")
		for _, f := range s.Failures {
			msg := "unknown error"
			if f.Err != nil {
				msg = f.Err.Error()
			}
			_, _ = fmt.Fprintf(w, "    %s: %s\n", f.Filename, msg)
		}
	}
}
