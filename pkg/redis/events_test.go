package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tickvault/tickvault/pkg/config"
	marketmodels "github.com/tickvault/tickvault/pkg/db/models/market"
	"github.com/tickvault/tickvault/pkg/ingest"
)

func TestFileEventJSON(t *testing.T) {
	tests := []struct {
		name string
		in   ingest.FileResult
		want string
	}{
		{
			name: "success",
			in:   ingest.FileResult{Filename: "sh600000_1min.zip", Status: marketmodels.StatusSuccess, Loaded: 240},
			want: `{"filename":"sh600000_1min.zip","status":"SUCCESS","loaded":240,"skipped":0}`,
		},
		{
			name: "failed",
			in: ingest.FileResult{Filename: "bad_1min.zip", Status: marketmodels.StatusFailed, Loaded: 10, Skipped: 5,
				Err: errors.New("too many skipped rows")},
			want: `{"filename":"bad_1min.zip","status":"FAILED","loaded":10,"skipped":5,"error":"too many skipped rows"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(NewFileEvent(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestPublishFileResultUnreachable(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewFromClient(rdb, zaptest.NewLogger(t))
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.PublishFileResult(ctx, ingest.FileResult{Filename: "a_1min.zip", Status: marketmodels.StatusSuccess})
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		c, err := NewClient(context.Background(), zaptest.NewLogger(t), config.Redis{Port: "6379"})
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("unreachable", func(t *testing.T) {
		c, err := NewClient(context.Background(), zaptest.NewLogger(t), config.Redis{Host: "127.0.0.1", Port: "1"})
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "127.0.0.1:1")
	})
}
