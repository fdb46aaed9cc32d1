// Package sqldb implements storage.Destination over database/sql. Backends
// supply a Flavor describing quoting, types and bind conventions.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"logexport/internal/dataset"
	"logexport/internal/schema"
	"logexport/internal/storage"
)

// Flavor is the per-database part of the SQL destination.
type Flavor struct {
	Kind   string
	Driver string

	// QuoteIdent quotes one identifier.
	QuoteIdent func(string) string
	// ColumnType maps a scalar type to the column type.
	ColumnType func(schema.ScalarType) string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Adapt maps a storage.ParseCell value to the bind type. Optional.
	Adapt func(schema.ScalarType, any) any

	VersionQuery string
	// MaxParams bounds the bind parameters of one INSERT.
	MaxParams int
}

// QuoteTable quotes a possibly schema-qualified table name.
func (f Flavor) QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = f.QuoteIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func (f Flavor) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + f.QuoteTable(table)
}

// CreateTableSQL returns CREATE TABLE plus, when the spec has layout hints,
// a CREATE INDEX on (sort key, date column).
func (f Flavor) CreateTableSQL(spec storage.TableSpec) []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(f.QuoteTable(spec.Name))
	b.WriteString(" (\n")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("    ")
		b.WriteString(f.QuoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(f.ColumnType(c.Type))
		b.WriteString(" NULL")
	}
	b.WriteString("\n)")
	out := []string{b.String()}

	idx := make([]string, 0, 2)
	for _, c := range []string{spec.SortKey, spec.DateColumn} {
		if c != "" {
			idx = append(idx, f.QuoteIdent(c))
		}
	}
	if len(idx) > 0 {
		out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			f.QuoteIdent(IndexName(spec)), f.QuoteTable(spec.Name), strings.Join(idx, ", ")))
	}
	return out
}

// IndexName is the layout index name for spec, e.g. ix_hits_complete_layout.
func IndexName(spec storage.TableSpec) string {
	name := spec.Name
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return "ix_" + name + "_layout"
}

// BuildInsertSQL renders one multi-row INSERT for nrows rows. Pure, so it can
// be tested without a database.
func (f Flavor) BuildInsertSQL(table string, cols []storage.Column, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(f.QuoteTable(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.QuoteIdent(c.Name))
	}
	b.WriteString(") VALUES ")
	p := 1
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Placeholder(p))
			p++
		}
		b.WriteString(")")
	}
	return b.String()
}

// BatchRows is how many rows fit in one INSERT for ncols columns.
func (f Flavor) BatchRows(ncols int) int {
	if ncols <= 0 {
		return 1
	}
	limit := f.MaxParams
	if limit <= 0 {
		limit = 999
	}
	n := limit / ncols
	if n < 1 {
		n = 1
	}
	return n
}

// DB is a database/sql destination.
type DB struct {
	db     *sql.DB
	flavor Flavor
}

// Open opens and pings dsn with the flavor's driver.
func Open(ctx context.Context, f Flavor, dsn string) (*DB, error) {
	db, err := sql.Open(f.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, flavor: f}, nil
}

// New wraps an already open handle.
func New(db *sql.DB, f Flavor) *DB { return &DB{db: db, flavor: f} }

func (d *DB) Kind() string { return d.flavor.Kind }

func (d *DB) Dialect() storage.Dialect { return d.flavor }

// SQL exposes the handle, e.g. for tests that read back loaded rows.
func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Version(ctx context.Context) (string, error) {
	var v string
	if err := d.db.QueryRowContext(ctx, d.flavor.VersionQuery).Scan(&v); err != nil {
		return "", storage.Wrap(d.flavor.Kind, "version", "", err)
	}
	return v, nil
}

func (d *DB) Exec(ctx context.Context, stmt string) error {
	_, err := d.db.ExecContext(ctx, stmt)
	return storage.Wrap(d.flavor.Kind, "exec", "", err)
}

// BulkLoad converts every cell first, then inserts in batches inside one
// transaction. Nothing is written if any cell fails to convert.
func (d *DB) BulkLoad(ctx context.Context, table string, cols []storage.Column, data *dataset.Table) (int64, error) {
	rows, err := storage.Rows(cols, data, d.flavor.Adapt)
	if err != nil {
		return 0, storage.Wrap(d.flavor.Kind, "convert", table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Wrap(d.flavor.Kind, "begin", table, err)
	}
	defer tx.Rollback()

	batch := d.flavor.BatchRows(len(cols))
	var total int64
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*len(cols))
		for _, r := range chunk {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, d.flavor.BuildInsertSQL(table, cols, len(chunk)), args...); err != nil {
			return 0, storage.Wrap(d.flavor.Kind, "insert", table, err)
		}
		total += int64(len(chunk))
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Wrap(d.flavor.Kind, "commit", table, err)
	}
	return total, nil
}

func (d *DB) Close() error { return d.db.Close() }

var (
	_ storage.Destination = (*DB)(nil)
	_ storage.Dialect     = Flavor{}
)
