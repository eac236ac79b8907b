package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
)

func testCompressorConfig() CompressorConfig {
	return CompressorConfig{
		After:       30 * 24 * time.Hour,
		LockTimeout: 30 * time.Second,
		Retries:     1,
		Backoff:     time.Millisecond,
	}
}

func chunks(names ...string) []marketmodels.Chunk {
	out := make([]marketmodels.Chunk, len(names))
	for i, n := range names {
		out[i] = marketmodels.Chunk{Schema: "_timescaledb_internal", Name: n}
	}
	return out
}

func TestCompressorSweep(t *testing.T) {
	cfg := testCompressorConfig()
	lockErr := &pgconn.PgError{Severity: "ERROR", Code: "55P03", Message: "canceling statement due to lock timeout"}

	store := &MockChunkStore{}
	store.On("ListCompressibleChunks", mock.Anything, cfg.After).
		Return(chunks("c1", "c2", "c3", "c4", "c5"), nil).Once()
	store.On("CompressChunk", mock.Anything, "c1", cfg.LockTimeout).Return(nil).Once()
	store.On("CompressChunk", mock.Anything, "c2", cfg.LockTimeout).
		Return(errors.New(`ERROR: chunk "c2" is already compressed`)).Once()
	// Busy on both attempts.
	store.On("CompressChunk", mock.Anything, "c3", cfg.LockTimeout).Return(lockErr).Twice()
	// Busy once, then succeeds on the retry.
	store.On("CompressChunk", mock.Anything, "c4", cfg.LockTimeout).Return(lockErr).Once()
	store.On("CompressChunk", mock.Anything, "c4", cfg.LockTimeout).Return(nil).Once()
	store.On("CompressChunk", mock.Anything, "c5", cfg.LockTimeout).Return(errors.New("disk full")).Once()

	report, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Compressed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Retryable)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Results, 5)
	assert.Equal(t, OutcomeRetryable, report.Results[2].Outcome)
	assert.Equal(t, OutcomeFailed, report.Results[4].Outcome)
	assert.Contains(t, report.Results[4].Error, "disk full")
	store.AssertExpectations(t)
}

func TestCompressorNonLockErrorsAreNotRetried(t *testing.T) {
	cfg := testCompressorConfig()
	cfg.Retries = 3

	store := &MockChunkStore{}
	store.On("ListCompressibleChunks", mock.Anything, cfg.After).Return(chunks("c1"), nil).Once()
	store.On("CompressChunk", mock.Anything, "c1", cfg.LockTimeout).Return(errors.New("permission denied")).Once()

	report, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	store.AssertNumberOfCalls(t, "CompressChunk", 1)
}

func TestCompressorListingFailurePropagates(t *testing.T) {
	cfg := testCompressorConfig()
	store := &MockChunkStore{}
	listErr := errors.New("relation timescaledb_information.chunks does not exist")
	store.On("ListCompressibleChunks", mock.Anything, cfg.After).Return(nil, listErr).Once()

	_, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(context.Background())

	assert.ErrorIs(t, err, listErr)
}

func TestCompressorNothingToDo(t *testing.T) {
	cfg := testCompressorConfig()
	store := &MockChunkStore{}
	store.On("ListCompressibleChunks", mock.Anything, cfg.After).Return([]marketmodels.Chunk{}, nil).Once()

	report, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, report.Total)
	store.AssertNotCalled(t, "CompressChunk", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompressorStopsWhenCancelled(t *testing.T) {
	cfg := testCompressorConfig()
	ctx, cancel := context.WithCancel(context.Background())

	store := &MockChunkStore{}
	store.On("ListCompressibleChunks", mock.Anything, cfg.After).Return(chunks("c1", "c2"), nil).Once()
	store.On("CompressChunk", mock.Anything, "c1", cfg.LockTimeout).Run(func(mock.Arguments) { cancel() }).Return(nil).Once()

	report, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Compressed)
	store.AssertNotCalled(t, "CompressChunk", mock.Anything, "c2", mock.Anything)
}

// A sweep cancelled while a chunk is being retried or compressed stops as
// interrupted; the chunk is not reported as failed.
func TestCompressorCancelledMidChunkIsNotAFailure(t *testing.T) {
	lockErr := &pgconn.PgError{Severity: "ERROR", Code: "55P03", Message: "canceling statement due to lock timeout"}

	tests := []struct {
		name string
		err  error
	}{
		{name: "during lock retry backoff", err: lockErr},
		{name: "statement cancelled", err: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCompressorConfig()
			cfg.Backoff = time.Minute
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			store := &MockChunkStore{}
			store.On("ListCompressibleChunks", mock.Anything, cfg.After).Return(chunks("c1", "c2"), nil).Once()
			store.On("CompressChunk", mock.Anything, "c1", cfg.LockTimeout).
				Run(func(mock.Arguments) { cancel() }).Return(tt.err).Once()

			start := time.Now()
			report, err := NewCompressor(zaptest.NewLogger(t), store, cfg).Run(ctx)

			require.Error(t, err)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Contains(t, err.Error(), "interrupted after 0 of 2 chunks")
			assert.Zero(t, report.Failed)
			assert.Zero(t, report.Retryable)
			assert.Empty(t, report.Results)
			assert.Less(t, time.Since(start), 10*time.Second)
			store.AssertNotCalled(t, "CompressChunk", mock.Anything, "c2", mock.Anything)
		})
	}
}
