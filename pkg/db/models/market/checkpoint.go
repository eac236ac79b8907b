package market

import (
	"time"
)

const CheckpointsTableName = "ingest_checkpoints"

// CheckpointStatus is the outcome of the latest processing attempt of a file.
type CheckpointStatus string

const (
	StatusSuccess CheckpointStatus = "SUCCESS"
	StatusWarning CheckpointStatus = "WARNING"
	StatusFailed  CheckpointStatus = "FAILED"
)

// Checkpoint is the latest attempt for one source archive. The table holds one
// row per filename; every attempt overwrites it.
type Checkpoint struct {
	Filename     string           `db:"filename" json:"filename"`
	ProcessedAt  time.Time        `db:"processed_at" json:"processed_at"`
	Status       CheckpointStatus `db:"status" json:"status"`
	SkippedLines int              `db:"skipped_lines" json:"skipped_lines"`
	ErrorMsg     *string          `db:"error_msg" json:"error_msg,omitempty"`

	// Nil on legacy rows written before fingerprints were recorded.
	FileSize     *int64     `db:"file_size" json:"file_size,omitempty"`
	LastModified *time.Time `db:"last_modified" json:"last_modified,omitempty"`
}

// StatusCount is one row of the status summary.
type StatusCount struct {
	Status CheckpointStatus `db:"status" json:"status"`
	Files  int64            `db:"files" json:"files"`
}
