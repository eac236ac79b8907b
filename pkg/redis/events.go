package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tickvault/tickvault/pkg/ingest"
)

// FileEventChannel receives one message per finalized source file.
const FileEventChannel = "tickvault:ingest.file"

// FileEvent is the JSON payload published on FileEventChannel.
type FileEvent struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Loaded   int    `json:"loaded"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// NewFileEvent converts a processing result to its wire form.
func NewFileEvent(r ingest.FileResult) FileEvent {
	ev := FileEvent{
		Filename: r.Filename,
		Status:   string(r.Status),
		Loaded:   r.Loaded,
		Skipped:  r.Skipped,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}

// PublishFileResult implements ingest.Notifier.
func (c *Client) PublishFileResult(ctx context.Context, r ingest.FileResult) error {
	payload, err := json.Marshal(NewFileEvent(r))
	if err != nil {
		return fmt.Errorf("encode file event: %w", err)
	}
	return c.Publish(ctx, FileEventChannel, payload)
}

var _ ingest.Notifier = (*Client)(nil)
