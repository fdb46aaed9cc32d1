package logsapi

import (
	"sort"

	"golang.org/x/text/cases"

	"logexport/internal/schema"
)

// CanonicalFields returns fields deduplicated and sorted case-insensitively,
// ties broken by raw byte order. The result does not depend on input order.
func CanonicalFields(fields []schema.FieldSpec) []schema.FieldSpec {
	fold := cases.Fold()
	type keyed struct {
		key string
		f   schema.FieldSpec
	}
	seen := make(map[schema.FieldSpec]bool, len(fields))
	ks := make([]keyed, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		ks = append(ks, keyed{key: fold.String(string(f)), f: f})
	}
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].key != ks[j].key {
			return ks[i].key < ks[j].key
		}
		return ks[i].f < ks[j].f
	})
	out := make([]schema.FieldSpec, len(ks))
	for i, k := range ks {
		out[i] = k.f
	}
	return out
}

// dedupe keeps the first occurrence of each field.
func dedupe(fields []schema.FieldSpec) []schema.FieldSpec {
	seen := make(map[schema.FieldSpec]bool, len(fields))
	out := make([]schema.FieldSpec, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
