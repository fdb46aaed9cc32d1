// Package dataset holds the in-memory tabular result of an export job.
//
// Cells are kept exactly as the provider sent them, with TabSeparated
// backslash escapes intact, so re-encoding a Table is lossless.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnMismatch is returned when two tables cannot be concatenated.
var ErrColumnMismatch = errors.New("dataset: column mismatch")

// Column is one named column of raw cells.
type Column struct {
	Name  string
	Cells []string
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []Column
}

// New returns an empty table with the given header.
func New(names ...string) *Table {
	t := &Table{Columns: make([]Column, len(names))}
	for i, n := range names {
		t.Columns[i] = Column{Name: n}
	}
	return t
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Rows returns the number of rows.
func (t *Table) Rows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// AppendRow adds one row. len(row) must equal the column count.
func (t *Table) AppendRow(row []string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("dataset: row has %d cells, want %d", len(row), len(t.Columns))
	}
	for i, v := range row {
		t.Columns[i].Cells = append(t.Columns[i].Cells, v)
	}
	return nil
}

// Row returns row i as a fresh slice.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = c.Cells[i]
	}
	return out
}

// Append adds the rows of other to t.
//
// other must carry the same column set. A permuted header is realigned by
// name; anything else returns ErrColumnMismatch and leaves t unchanged.
func (t *Table) Append(other *Table) error {
	if len(other.Columns) != len(t.Columns) {
		return fmt.Errorf("%w: %d columns, want %d", ErrColumnMismatch, len(other.Columns), len(t.Columns))
	}
	src := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		j := other.Index(c.Name)
		if j < 0 {
			return fmt.Errorf("%w: missing column %q (got %s)", ErrColumnMismatch, c.Name, strings.Join(other.Names(), ","))
		}
		src[i] = j
	}
	for i := range t.Columns {
		t.Columns[i].Cells = append(t.Columns[i].Cells, other.Columns[src[i]].Cells...)
	}
	return nil
}

// FragmentError names the Concat argument that could not be appended.
type FragmentError struct {
	Index int
	Err   error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("fragment %d: %v", e.Index, e.Err)
}

func (e *FragmentError) Unwrap() error { return e.Err }

// Concat joins tables in order. The first table's header wins.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("dataset: nothing to concatenate")
	}
	out := New(tables[0].Names()...)
	for i, tb := range tables {
		if err := out.Append(tb); err != nil {
			return nil, &FragmentError{Index: i, Err: err}
		}
	}
	return out, nil
}

// Project returns a table with exactly the named columns in the given order.
// Cells are shared with t.
func (t *Table) Project(names []string) (*Table, error) {
	out := &Table{Columns: make([]Column, len(names))}
	for i, n := range names {
		j := t.Index(n)
		if j < 0 {
			return nil, fmt.Errorf("dataset: project: no column %q", n)
		}
		out.Columns[i] = t.Columns[j]
	}
	return out, nil
}

// Rename returns a copy of t whose columns are renamed positionally.
func (t *Table) Rename(names []string) (*Table, error) {
	if len(names) != len(t.Columns) {
		return nil, fmt.Errorf("dataset: rename: %d names for %d columns", len(names), len(t.Columns))
	}
	out := &Table{Columns: make([]Column, len(names))}
	for i, n := range names {
		out.Columns[i] = Column{Name: n, Cells: t.Columns[i].Cells}
	}
	return out, nil
}
