package ingest

import (
	"context"

	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	pgmarket "github.com/tickvault/tickvault/pkg/db/postgres/market"
)

type postgresStore struct {
	db *pgmarket.DB
}

// NewPostgresStore adapts the market database to Store.
func NewPostgresStore(db *pgmarket.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) OpenLoader(ctx context.Context) (Loader, error) {
	session, err := s.db.AcquireSession(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *postgresStore) UpsertCheckpoint(ctx context.Context, cp marketmodels.Checkpoint) error {
	return s.db.UpsertCheckpoint(ctx, cp)
}

func (s *postgresStore) ListCheckpoints(ctx context.Context) (map[string]marketmodels.Checkpoint, error) {
	return s.db.ListCheckpoints(ctx)
}
