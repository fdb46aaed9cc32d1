package storage

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"logexport/internal/dataset"
	"logexport/internal/parser/tsv"
	"logexport/internal/schema"
)

// Layouts of provider Date and DateTime cells.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

// ParseCell converts one escaped provider cell to a Go value for typ:
// uint64 for UInt64, int64 for UInt32 and UInt8, time.Time for Date and
// DateTime, float64 for Float64, string for String.
//
// \N is nil for every type. An empty cell is nil for every type but String.
func ParseCell(typ schema.ScalarType, raw string) (any, error) {
	if raw == `\N` {
		return nil, nil
	}
	v := tsv.Unescape(raw)
	if typ == schema.String {
		return v, nil
	}
	if v == "" {
		return nil, nil
	}
	switch typ {
	case schema.UInt64:
		return strconv.ParseUint(v, 10, 64)
	case schema.UInt32:
		n, err := strconv.ParseUint(v, 10, 32)
		return int64(n), err
	case schema.UInt8:
		n, err := strconv.ParseUint(v, 10, 8)
		return int64(n), err
	case schema.Float64:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return nil, fmt.Errorf("non-finite float %q", v)
		}
		return f, err
	case schema.Date:
		return time.ParseInLocation(DateLayout, v, time.UTC)
	case schema.DateTime:
		return time.ParseInLocation(DateTimeLayout, v, time.UTC)
	}
	return nil, fmt.Errorf("unsupported type %q", typ)
}

// Rows converts data into typed rows. adapt, if non-nil, maps each parsed
// value to the backend's bind type.
func Rows(cols []Column, data *dataset.Table, adapt func(schema.ScalarType, any) any) ([][]any, error) {
	if len(data.Columns) != len(cols) {
		return nil, fmt.Errorf("data has %d columns, want %d", len(data.Columns), len(cols))
	}
	n := data.Rows()
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(cols))
		for j, c := range cols {
			v, err := ParseCell(c.Type, data.Columns[j].Cells[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, c.Name, err)
			}
			if adapt != nil && v != nil {
				v = adapt(c.Type, v)
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}
