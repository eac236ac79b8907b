package utils

import "io"

// DrainAndClose drains and closes the given ReadCloser. For zip members the
// drain forces the CRC check even when the caller stopped reading early.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, copyErr := io.Copy(io.Discard, rc)
	closeErr := rc.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
