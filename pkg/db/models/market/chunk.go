package market

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Chunk is a store-managed partition of the raw series, addressed only by the
// (schema, name) handle from the chunk catalog.
type Chunk struct {
	Schema     string    `db:"chunk_schema" json:"chunk_schema"`
	Name       string    `db:"chunk_name" json:"chunk_name"`
	RangeStart time.Time `db:"range_start" json:"range_start"`
	RangeEnd   time.Time `db:"range_end" json:"range_end"`
}

// QualifiedName returns the quoted schema.name identifier.
func (c Chunk) QualifiedName() string {
	return pgx.Identifier{c.Schema, c.Name}.Sanitize()
}

func (c Chunk) String() string {
	return fmt.Sprintf("%s.%s", c.Schema, c.Name)
}
