package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An unreachable store is fatal within seconds, not after the long
// service-style backoff.
func TestInitializeFailsFastWithoutStore(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://tickvault@127.0.0.1:1/market?sslmode=disable")
	t.Setenv("LOG_LEVEL", "error")

	start := time.Now()
	app, err := Initialize(context.Background(), Options{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "connect to store")
	assert.Less(t, elapsed, 20*time.Second)
}
