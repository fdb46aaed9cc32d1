// Package all links every destination backend into the binary.
package all

import (
	_ "logexport/internal/storage/clickhouse"
	_ "logexport/internal/storage/duckdb"
	_ "logexport/internal/storage/mssql"
	_ "logexport/internal/storage/mysql"
	_ "logexport/internal/storage/postgres"
	_ "logexport/internal/storage/sqlite"
)
