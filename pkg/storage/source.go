// Package storage abstracts the row store behind the presentation engine.
// A Source produces lazily-iterated row sequences for one table; rows are
// only read when the consumer pulls them, so responses stream with bounded
// memory. The canonical implementation is Postgres-backed (postgres.go); a
// small in-memory implementation backs tests and fixtures (memory.go).
package storage

import (
	"context"
	"errors"

	"github.com/tablodata/tablo/pkg/schema"
)

// ErrRowNotFound is returned by Lookup when no row matches the key.
var ErrRowNotFound = errors.New("row not found")

// Row is one storage row keyed by column name.
type Row map[string]any

// Operator names of the filter grammar.
const (
	OpExact    = "exact"
	OpNot      = "not"
	OpLt       = "lt"
	OpLte      = "lte"
	OpGt       = "gt"
	OpGte      = "gte"
	OpContains = "contains"
	OpLike     = "like"
	OpIn       = "in"
	OpIsNull   = "isnull"
	// OpGtOrNull matches values above the bound or absent ones. Open-ended
	// temporal validity ranges store NULL for the end boundary.
	OpGtOrNull = "gtOrNull"
)

// ParentColumn links rows of a nested table to their owning row.
const ParentColumn = "parent_id"

// Filter restricts a query on one column. Op uses the filter grammar's
// operator names (exact, not, lt, lte, gt, gte, contains, like, in, isnull).
type Filter struct {
	Column string
	Op     string
	Value  any
}

// Sort orders a query on one column.
type Sort struct {
	Column     string
	Descending bool
}

// Query describes one bounded slice of a table's rows.
type Query struct {
	Table   *schema.Table
	Filters []Filter
	Sort    []Sort
	Offset  int
	// Limit bounds the number of rows; 0 means unbounded.
	Limit int
}

// Iterator is a lazily-pulled row sequence. Close releases the backing
// cursor and must be called on every exit path, including early aborts.
type Iterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Source produces row sequences for tables.
type Source interface {
	// Rows starts the query; row I/O is deferred until the iterator is pulled.
	Rows(ctx context.Context, q Query) (Iterator, error)
	// Lookup fetches a single row by its primary identifier value.
	Lookup(ctx context.Context, t *schema.Table, key any) (Row, error)
}

// TableName returns the storage (schema, relation) pair of a table:
// one Postgres schema per dataset, snake_cased relation names.
func TableName(t *schema.Table) (string, string) {
	return schema.ToSnakeCase(t.DatasetID), schema.ToSnakeCase(t.ID)
}
