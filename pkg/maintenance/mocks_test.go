package maintenance

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	pgmarket "github.com/tickvault/tickvault/pkg/db/postgres/market"
)

// MockRollupStore is a testify mock of RollupStore.
type MockRollupStore struct {
	mock.Mock
}

func (m *MockRollupStore) MonthlyViewExists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockRollupStore) ExecDDL(ctx context.Context, stmt pgmarket.DDLStatement) error {
	args := m.Called(ctx, stmt.Name)
	return args.Error(0)
}

func (m *MockRollupStore) RefreshMonthlyView(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockChunkStore is a testify mock of ChunkStore.
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) ListCompressibleChunks(ctx context.Context, olderThan time.Duration) ([]marketmodels.Chunk, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]marketmodels.Chunk), args.Error(1)
}

func (m *MockChunkStore) CompressChunk(ctx context.Context, chunk marketmodels.Chunk, lockTimeout time.Duration) error {
	args := m.Called(ctx, chunk.Name, lockTimeout)
	return args.Error(0)
}
