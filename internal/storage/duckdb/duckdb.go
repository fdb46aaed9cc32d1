// Package duckdb registers the "duckdb" destination (github.com/marcboeker/go-duckdb/v2),
// a local columnar store.
package duckdb

import (
	"context"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"logexport/internal/schema"
	"logexport/internal/storage"
	"logexport/internal/storage/sqldb"
)

func init() {
	storage.Register("duckdb", New)
}

// Flavor is the DuckDB dialect.
var Flavor = sqldb.Flavor{
	Kind:         "duckdb",
	Driver:       "duckdb",
	QuoteIdent:   duckIdent,
	ColumnType:   columnType,
	Placeholder:  func(int) string { return "?" },
	VersionQuery: "SELECT version()",
	MaxParams:    30000,
}

// New opens cfg.DSN, a database file path ("" for in-memory).
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sqldb.Open(ctx, Flavor, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func duckIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t schema.ScalarType) string {
	switch t {
	case schema.UInt64:
		return "UBIGINT"
	case schema.UInt32:
		return "UINTEGER"
	case schema.UInt8:
		return "UTINYINT"
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "TIMESTAMP"
	case schema.Float64:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}
