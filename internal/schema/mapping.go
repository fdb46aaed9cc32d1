package schema

import (
	"fmt"
	"sort"

	"logexport/internal/event"
)

// Mapping is the immutable field-to-column table for one Source.
type Mapping struct {
	source     Source
	order      []FieldSpec
	byField    map[FieldSpec]ColumnMapping
	sortKey    string
	dateColumn string
}

// Source returns the Source this mapping belongs to.
func (m *Mapping) Source() Source { return m.source }

// Lookup returns the mapping entry for f.
func (m *Mapping) Lookup(f FieldSpec) (ColumnMapping, bool) {
	cm, ok := m.byField[f]
	return cm, ok
}

// Fields returns every mapped field in declaration order.
func (m *Mapping) Fields() []FieldSpec {
	return append([]FieldSpec(nil), m.order...)
}

// SortKey is the stable per-record identifier column.
func (m *Mapping) SortKey() string { return m.sortKey }

// DateColumn is the record date column.
func (m *Mapping) DateColumn() string { return m.dateColumn }

// MappingBuilder assembles a Mapping. Build panics on duplicate fields or
// columns: the tables are static configuration and must fail at init.
type MappingBuilder struct {
	m    *Mapping
	cols map[string]FieldSpec
}

// NewMapping starts a builder for source.
func NewMapping(source Source) *MappingBuilder {
	return &MappingBuilder{
		m: &Mapping{
			source:  source,
			byField: make(map[FieldSpec]ColumnMapping),
		},
		cols: make(map[string]FieldSpec),
	}
}

// Field adds one field → column entry.
func (b *MappingBuilder) Field(f FieldSpec, column string, t ScalarType) *MappingBuilder {
	if _, dup := b.m.byField[f]; dup {
		panic(fmt.Sprintf("schema: %s: duplicate field %q", b.m.source, f))
	}
	if prev, dup := b.cols[column]; dup {
		panic(fmt.Sprintf("schema: %s: column %q mapped from both %q and %q", b.m.source, column, prev, f))
	}
	if !t.Valid() {
		panic(fmt.Sprintf("schema: %s: field %q has invalid type %q", b.m.source, f, t))
	}
	b.m.byField[f] = ColumnMapping{Field: f, Column: column, Type: t}
	b.m.order = append(b.m.order, f)
	b.cols[column] = f
	return b
}

// SortKey names the stable per-record identifier column.
func (b *MappingBuilder) SortKey(column string) *MappingBuilder {
	b.m.sortKey = column
	return b
}

// DateColumn names the record date column.
func (b *MappingBuilder) DateColumn(column string) *MappingBuilder {
	b.m.dateColumn = column
	return b
}

// Build returns the finished Mapping.
func (b *MappingBuilder) Build() *Mapping {
	for _, c := range []string{b.m.sortKey, b.m.dateColumn} {
		if c == "" {
			continue
		}
		if _, ok := b.cols[c]; !ok {
			panic(fmt.Sprintf("schema: %s: layout column %q is not mapped", b.m.source, c))
		}
	}
	return b.m
}

// Registry holds one Mapping per Source.
type Registry struct {
	bySource map[Source]*Mapping
}

// NewRegistry builds a registry from mappings. Later mappings for the same
// Source replace earlier ones.
func NewRegistry(mappings ...*Mapping) *Registry {
	r := &Registry{bySource: make(map[Source]*Mapping, len(mappings))}
	for _, m := range mappings {
		r.bySource[m.source] = m
	}
	return r
}

// Mapping returns the table for source.
func (r *Registry) Mapping(source Source) (*Mapping, bool) {
	m, ok := r.bySource[source]
	return m, ok
}

// Sources returns the registered Sources sorted by name.
func (r *Registry) Sources() []Source {
	out := make([]Source, 0, len(r.bySource))
	for s := range r.bySource {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Derive builds the destination schema for the given available fields.
//
// Column order follows available. Fields without a mapping entry are dropped
// and reported at debug level; only an unknown source is an error.
func (r *Registry) Derive(available []FieldSpec, source Source, obs event.Observer) (DestinationSchema, error) {
	m, ok := r.bySource[source]
	if !ok {
		return DestinationSchema{}, fmt.Errorf("schema: no mapping for source %q", source)
	}
	obs = event.OrNop(obs)

	out := DestinationSchema{Source: source, Columns: make([]Column, 0, len(available))}
	seen := make(map[FieldSpec]bool, len(available))
	for _, f := range available {
		if seen[f] {
			continue
		}
		seen[f] = true
		cm, ok := m.byField[f]
		if !ok {
			obs.OnEvent(event.LevelDebug, "field has no column mapping; skipped", "source", string(source), "field", string(f))
			continue
		}
		out.Columns = append(out.Columns, Column{Field: f, Name: cm.Column, Type: cm.Type})
	}
	if m.sortKey != "" && out.Has(m.sortKey) {
		out.SortKey = m.sortKey
	}
	if m.dateColumn != "" && out.Has(m.dateColumn) {
		out.DateColumn = m.dateColumn
	}
	return out, nil
}
