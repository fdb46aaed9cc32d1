// Package sqlite registers the "sqlite" destination (modernc.org/sqlite).
//
// SQLite has no unsigned 64-bit integer, so UInt64 is stored as TEXT in
// decimal form. Dates are stored as ISO-8601 TEXT.
package sqlite

import (
	"context"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"logexport/internal/schema"
	"logexport/internal/storage"
	"logexport/internal/storage/sqldb"
)

func init() {
	storage.Register("sqlite", New)
}

// Flavor is the SQLite dialect.
var Flavor = sqldb.Flavor{
	Kind:         "sqlite",
	Driver:       "sqlite",
	QuoteIdent:   sqlIdent,
	ColumnType:   columnType,
	Placeholder:  func(int) string { return "?" },
	Adapt:        adapt,
	VersionQuery: "SELECT sqlite_version()",
	MaxParams:    999,
}

// New opens cfg.DSN, e.g. "file:export.db" or ":memory:".
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sqldb.Open(ctx, Flavor, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t schema.ScalarType) string {
	switch t {
	case schema.UInt32, schema.UInt8:
		return "INTEGER"
	case schema.Float64:
		return "REAL"
	default:
		return "TEXT"
	}
}

func adapt(t schema.ScalarType, v any) any {
	switch x := v.(type) {
	case uint64:
		return strconv.FormatUint(x, 10)
	case time.Time:
		if t == schema.Date {
			return x.Format(storage.DateLayout)
		}
		return x.Format(storage.DateTimeLayout)
	}
	return v
}
