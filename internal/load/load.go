// Package load creates destination tables and bulk-loads export results
// into them.
package load

import (
	"context"
	"errors"
	"fmt"

	"logexport/internal/dataset"
	"logexport/internal/event"
	"logexport/internal/metrics"
	"logexport/internal/schema"
	"logexport/internal/storage"
)

// ErrNoColumns is returned when a schema has nothing to create or load.
var ErrNoColumns = errors.New("schema has no columns")

// Provisioner drops and recreates destination tables.
type Provisioner struct {
	Dest     storage.Destination
	Observer event.Observer
}

// Provision replaces table with an empty one holding exactly s's columns.
// Existing data in table is lost.
func (p *Provisioner) Provision(ctx context.Context, table string, s schema.DestinationSchema) error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("provision %s: %w", table, ErrNoColumns)
	}
	d := p.Dest.Dialect()
	stmts := append([]string{d.DropTableSQL(table)}, d.CreateTableSQL(storage.SpecFor(table, s))...)
	for _, stmt := range stmts {
		if err := p.Dest.Exec(ctx, stmt); err != nil {
			return storage.Wrap(p.Dest.Kind(), "provision", table, err)
		}
	}
	event.OrNop(p.Observer).OnEvent(event.LevelInfo, "table recreated",
		"table", table, "columns", len(s.Columns), "sort_key", s.SortKey, "date_column", s.DateColumn)
	return nil
}

// Uploader projects a dataset onto a schema and bulk-loads it.
type Uploader struct {
	Dest     storage.Destination
	Observer event.Observer
}

// Upload loads ds into table. ds is keyed by provider field names; only the
// schema's fields are sent, in schema order, under their column names.
func (u *Uploader) Upload(ctx context.Context, table string, ds *dataset.Table, s schema.DestinationSchema) (int64, error) {
	if len(s.Columns) == 0 {
		return 0, fmt.Errorf("upload %s: %w", table, ErrNoColumns)
	}
	fields := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = string(c.Field)
	}
	proj, err := ds.Project(fields)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", table, err)
	}
	out, err := proj.Rename(s.Names())
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", table, err)
	}

	n, err := u.Dest.BulkLoad(ctx, table, storage.SpecFor(table, s).Columns, out)
	if err != nil {
		return 0, storage.Wrap(u.Dest.Kind(), "upload", table, err)
	}
	metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"source": string(s.Source), "table": table})
	event.OrNop(u.Observer).OnEvent(event.LevelInfo, "rows uploaded", "table", table, "rows", n)
	return n, nil
}
