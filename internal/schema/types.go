// Package schema holds the curated field-to-column mapping tables and derives
// destination schemas from the fields a provider reported as available.
package schema

import (
	"fmt"
	"strings"
)

// Source is a named category of exported records.
type Source string

const (
	SourceHits   Source = "hits"
	SourceVisits Source = "visits"
)

// Sources lists every known Source in export order.
var Sources = []Source{SourceHits, SourceVisits}

// ParseSource accepts a source name case-insensitively.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceHits:
		return SourceHits, nil
	case SourceVisits:
		return SourceVisits, nil
	default:
		return "", fmt.Errorf("unknown source %q (want hits or visits)", s)
	}
}

// FieldSpec is an opaque provider-defined field identifier, e.g. "ym:pv:clientID".
type FieldSpec string

// ScalarType is a destination column type.
type ScalarType string

const (
	UInt64   ScalarType = "UInt64"
	UInt32   ScalarType = "UInt32"
	UInt8    ScalarType = "UInt8"
	Date     ScalarType = "Date"
	DateTime ScalarType = "DateTime"
	String   ScalarType = "String"
	Float64  ScalarType = "Float64"
)

// Valid reports whether t is one of the supported scalar types.
func (t ScalarType) Valid() bool {
	switch t {
	case UInt64, UInt32, UInt8, Date, DateTime, String, Float64:
		return true
	}
	return false
}

// ColumnMapping maps one provider field to one destination column.
type ColumnMapping struct {
	Field  FieldSpec
	Column string
	Type   ScalarType
}

// Column is one column of a DestinationSchema.
type Column struct {
	Field FieldSpec
	Name  string
	Type  ScalarType
}

// DestinationSchema is the ordered column list derived for one run.
//
// SortKey and DateColumn are set only when those columns are part of Columns.
type DestinationSchema struct {
	Source     Source
	Columns    []Column
	SortKey    string
	DateColumn string
}

// Names returns the destination column names in order.
func (s DestinationSchema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Fields returns the provider field names in column order.
func (s DestinationSchema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Field
	}
	return out
}

// Has reports whether the schema contains a column named name.
func (s DestinationSchema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
