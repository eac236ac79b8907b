package maintain

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/maintenance"
)

const recentFailureLimit = 10

// Status prints checkpoint counts and the latest failed files.
func (a *App) Status(ctx context.Context) error {
	counts, err := a.DB.CountCheckpointsByStatus(ctx)
	if err != nil {
		return err
	}
	failures, err := a.DB.RecentFailures(ctx, recentFailureLimit)
	if err != nil {
		return err
	}
	ticks, err := a.DB.CountTicks(ctx)
	if err != nil {
		return err
	}
	PrintStatus(a.Out, counts, failures, ticks)
	return nil
}

// PrintStatus renders the status report.
func PrintStatus(w io.Writer, counts []marketmodels.StatusCount, failures []marketmodels.Checkpoint, ticks int64) {
	_, _ = fmt.Fprintf(w, "Minute bars: %d\n\n", ticks)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STATUS\tFILES")
	var total int64
	for _, c := range counts {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", c.Status, c.Files)
		total += c.Files
	}
	_, _ = fmt.Fprintf(tw, "TOTAL\t%d\n", total)
	_ = tw.Flush()

	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintf(w, "\nRecent failures:\n")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILE\tPROCESSED\tSKIPPED\tERROR")
	for _, f := range failures {
		msg := ""
		if f.ErrorMsg != nil {
			msg = *f.ErrorMsg
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Filename, f.ProcessedAt.Format(time.RFC3339), f.SkippedLines, msg)
	}
	_ = tw.Flush()
}

// PrintCompressionReport renders a sweep result.
func PrintCompressionReport(w io.Writer, r maintenance.CompressionReport) {
	_, _ = fmt.Fprintf(w, "Compression: %d chunks, %d compressed, %d already compressed, %d busy, %d failed (%s)\n",
		r.Total, r.Compressed, r.Skipped, r.Retryable, r.Failed, r.Duration.Round(time.Millisecond))
	for _, c := range r.Results {
		if c.Outcome == maintenance.OutcomeRetryable || c.Outcome == maintenance.OutcomeFailed {
			_, _ = fmt.Fprintf(w, "  %s %s: %s\n", c.Chunk, c.Outcome, c.Error)
		}
	}
}

// sampleMonths caps how many rollup rows PrintMonthlyBars shows.
const sampleMonths = 12

// PrintMonthlyBars renders the most recent rollup rows for one code.
func PrintMonthlyBars(w io.Writer, code string, bars []marketmodels.MonthlyBar) {
	if len(bars) == 0 {
		_, _ = fmt.Fprintf(w, "No monthly bars for %s\n", code)
		return
	}
	if len(bars) > sampleMonths {
		bars = bars[len(bars)-sampleMonths:]
	}

	_, _ = fmt.Fprintf(w, "Monthly bars for %s (%s):\n", code, bars[len(bars)-1].Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MONTH\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME\tAMOUNT")
	for _, b := range bars {
		_, _ = fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.2f\n",
			b.Month.Format("2006-01"), b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount)
	}
	_ = tw.Flush()
}
