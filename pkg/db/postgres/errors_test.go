package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	wrap := func(code, msg string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, Message: msg})
	}

	tests := []struct {
		name       string
		err        error
		exists     bool
		compressed bool
		lock       bool
	}{
		{name: "nil", err: nil},
		{name: "duplicate table", err: wrap(CodeDuplicateTable, `relation "minute_bars_monthly" already exists`), exists: true},
		{name: "duplicate object", err: wrap(CodeDuplicateObject, "index exists"), exists: true},
		{name: "already compressed", err: wrap("XX000", `chunk "_hyper_1_2_chunk" is already compressed`), compressed: true},
		{name: "lock timeout", err: wrap(CodeLockNotAvailable, "canceling statement due to lock timeout"), lock: true},
		{name: "deadlock", err: wrap(CodeDeadlockDetected, "deadlock detected"), lock: true},
		{name: "plain error", err: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exists, IsAlreadyExists(tt.err))
			assert.Equal(t, tt.compressed, IsAlreadyCompressed(tt.err))
			assert.Equal(t, tt.lock, IsLockContention(tt.err))
		})
	}
}

func TestPgCode(t *testing.T) {
	assert.Equal(t, "", PgCode(errors.New("x")))
	assert.Equal(t, CodeDeadlockDetected, PgCode(fmt.Errorf("w: %w", &pgconn.PgError{Code: CodeDeadlockDetected})))
}

func TestGetPoolConfigForComponent(t *testing.T) {
	tests := []struct {
		name      string
		component string
		workers   []int
		wantMax   int32
	}{
		{name: "ingest default", component: "ingest", wantMax: 6},
		{name: "ingest sized by workers", component: "ingest", workers: []int{8}, wantMax: 10},
		{name: "maintenance", component: "maintenance", wantMax: 4},
		{name: "unknown", component: "other", wantMax: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetPoolConfigForComponent(tt.component, tt.workers...)
			assert.Equal(t, tt.wantMax, cfg.MaxConns)
			assert.Equal(t, tt.component, cfg.Component)
		})
	}
}
