// Package mysql registers the "mysql" destination (github.com/go-sql-driver/mysql).
package mysql

import (
	"context"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"logexport/internal/schema"
	"logexport/internal/storage"
	"logexport/internal/storage/sqldb"
)

func init() {
	storage.Register("mysql", New)
}

// Flavor is the MySQL dialect.
var Flavor = sqldb.Flavor{
	Kind:         "mysql",
	Driver:       "mysql",
	QuoteIdent:   mysqlIdent,
	ColumnType:   columnType,
	Placeholder:  func(int) string { return "?" },
	VersionQuery: "SELECT VERSION()",
	MaxParams:    60000,
}

// New opens cfg.DSN, e.g. "user:pass@tcp(host:3306)/analytics?parseTime=true".
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sqldb.Open(ctx, Flavor, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func columnType(t schema.ScalarType) string {
	switch t {
	case schema.UInt64:
		return "BIGINT UNSIGNED"
	case schema.UInt32:
		return "INT UNSIGNED"
	case schema.UInt8:
		return "TINYINT UNSIGNED"
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "DATETIME"
	case schema.Float64:
		return "DOUBLE"
	default:
		return "LONGTEXT"
	}
}
