package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the maintenance jobs branch on.
const (
	CodeDuplicateTable     = "42P07"
	CodeDuplicateObject    = "42710"
	CodeDuplicateSchema    = "42P06"
	CodeLockNotAvailable   = "55P03"
	CodeDeadlockDetected   = "40P01"
	CodeQueryCanceled      = "57014"
	CodeObjectInUse        = "55006"
	CodeSerializationRetry = "40001"
)

// PgCode returns the SQLSTATE of err, or "" when err is not a server error.
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsAlreadyExists reports a duplicate table/object/schema error, or the
// TimescaleDB notices phrased as "already exists".
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	switch PgCode(err) {
	case CodeDuplicateTable, CodeDuplicateObject, CodeDuplicateSchema:
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// IsAlreadyCompressed reports TimescaleDB's refusal to compress a chunk twice.
func IsAlreadyCompressed(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already compressed")
}

// IsLockContention reports lock timeouts, deadlocks and statement cancels
// caused by lock_timeout.
func IsLockContention(err error) bool {
	switch PgCode(err) {
	case CodeLockNotAvailable, CodeDeadlockDetected, CodeQueryCanceled, CodeObjectInUse, CodeSerializationRetry:
		return true
	}
	return false
}
