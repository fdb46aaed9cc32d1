// Package storage defines the destination abstraction the loader writes
// through, and the registry backends add themselves to.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"logexport/internal/dataset"
	"logexport/internal/schema"
)

// Config selects and configures a destination.
//
// SQL backends read DSN. ClickHouse reads URL, User, Password, Database and
// CACert.
type Config struct {
	Kind string

	DSN string

	URL      string
	User     string
	Password string
	Database string
	CACert   string
}

// Column is one typed destination column.
type Column struct {
	Name string
	Type schema.ScalarType
}

// TableSpec describes a table to create. SortKey and DateColumn are optional
// layout hints and, when set, name columns present in Columns.
type TableSpec struct {
	Name       string
	Columns    []Column
	SortKey    string
	DateColumn string
}

// SpecFor builds a TableSpec from a derived schema.
func SpecFor(table string, s schema.DestinationSchema) TableSpec {
	cols := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type}
	}
	return TableSpec{Name: table, Columns: cols, SortKey: s.SortKey, DateColumn: s.DateColumn}
}

// Dialect renders DDL for one destination flavor. Implementations are pure
// so statements can be tested without a server.
type Dialect interface {
	DropTableSQL(table string) string
	// CreateTableSQL returns the statements that create the table, in order.
	CreateTableSQL(spec TableSpec) []string
}

// Destination is an analytical store the exporter can (re)create tables in
// and bulk-load.
type Destination interface {
	Kind() string
	Dialect() Dialect
	// Version is a cheap connectivity check.
	Version(ctx context.Context) (string, error)
	Exec(ctx context.Context, stmt string) error
	// BulkLoad inserts every row of data into table. data's columns are
	// already in cols order and named like cols.
	BulkLoad(ctx context.Context, table string, cols []Column, data *dataset.Table) (int64, error)
	Close() error
}

// Factory opens a destination of one kind.
type Factory func(ctx context.Context, cfg Config) (Destination, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a backend under kind (e.g. "clickhouse", "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs the destination registered for cfg.Kind.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Factory failures are returned as *DestinationError.
func Open(ctx context.Context, cfg Config) (Destination, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing destination kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported destination kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	d, err := f(ctx, cfg)
	if err != nil {
		return nil, Wrap(cfg.Kind, "open", "", err)
	}
	return d, nil
}
