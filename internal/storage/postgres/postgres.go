// Package postgres registers the "postgres" destination (pgx/v5).
//
// Rows are loaded with COPY inside one transaction. UInt64 values are
// NUMERIC(20,0) since Postgres has no unsigned 64-bit integer.
package postgres

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"logexport/internal/dataset"
	"logexport/internal/schema"
	"logexport/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Repo is the Postgres destination.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool on cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Kind() string { return "postgres" }

func (r *Repo) Dialect() storage.Dialect { return Dialect{} }

func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) Version(ctx context.Context) (string, error) {
	var v string
	if err := r.pool.QueryRow(ctx, "SHOW server_version").Scan(&v); err != nil {
		return "", storage.Wrap("postgres", "version", "", err)
	}
	return v, nil
}

func (r *Repo) Exec(ctx context.Context, stmt string) error {
	_, err := r.pool.Exec(ctx, stmt)
	return storage.Wrap("postgres", "exec", "", err)
}

// BulkLoad copies data into table in one transaction.
func (r *Repo) BulkLoad(ctx context.Context, table string, cols []storage.Column, data *dataset.Table) (int64, error) {
	rows, err := storage.Rows(cols, data, adapt)
	if err != nil {
		return 0, storage.Wrap("postgres", "convert", table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, storage.Wrap("postgres", "begin", table, err)
	}
	defer tx.Rollback(ctx)

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	n, err := tx.CopyFrom(ctx, tableIdentifier(table), names, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, storage.Wrap("postgres", "copy", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storage.Wrap("postgres", "commit", table, err)
	}
	return n, nil
}

// Dialect renders Postgres DDL.
type Dialect struct{}

func (Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pgTable(table)
}

// CreateTableSQL builds CREATE TABLE and the layout index.
func (Dialect) CreateTableSQL(spec storage.TableSpec) []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(pgTable(spec.Name))
	b.WriteString(" (\n")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "    %s %s NULL", pgIdent(c.Name), columnType(c.Type))
	}
	b.WriteString("\n)")
	out := []string{b.String()}

	var idx []string
	for _, c := range []string{spec.SortKey, spec.DateColumn} {
		if c != "" {
			idx = append(idx, pgIdent(c))
		}
	}
	if len(idx) > 0 {
		name := spec.Name
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		out = append(out, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			pgIdent("ix_"+name+"_layout"), pgTable(spec.Name), strings.Join(idx, ", ")))
	}
	return out
}

func columnType(t schema.ScalarType) string {
	switch t {
	case schema.UInt64:
		return "NUMERIC(20,0)"
	case schema.UInt32:
		return "BIGINT"
	case schema.UInt8:
		return "SMALLINT"
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "TIMESTAMP"
	case schema.Float64:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

func adapt(_ schema.ScalarType, v any) any {
	if u, ok := v.(uint64); ok {
		return pgtype.Numeric{Int: new(big.Int).SetUint64(u), Exp: 0, Valid: true}
	}
	return v
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func pgTable(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = pgIdent(parts[i])
	}
	return strings.Join(parts, ".")
}

func tableIdentifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

var _ storage.Destination = (*Repo)(nil)
