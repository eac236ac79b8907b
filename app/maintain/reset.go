package maintain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const resetConfirmation = "RESET"

// Reset truncates the raw series and the checkpoint table together. Unless
// skipConfirm is set the operator must type RESET.
func (a *App) Reset(ctx context.Context, skipConfirm bool) error {
	if !skipConfirm && !ConfirmReset(a.In, a.Out) {
		_, _ = fmt.Fprintln(a.Out, "Aborted, nothing was deleted.")
		return nil
	}
	if err := a.DB.ResetAll(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.Out, "All minute bars and ingest checkpoints deleted.")
	return nil
}

// ConfirmReset prompts on out and reports whether the operator typed the
// confirmation word exactly.
func ConfirmReset(in io.Reader, out io.Writer) bool {
	_, _ = fmt.Fprintf(out, "This permanently deletes every minute bar and every ingest checkpoint.\nType %s to continue: ", resetConfirmation)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == resetConfirmation
}
