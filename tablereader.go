// TableReader is the gather core (spec §4.F): given a TableView and a
// set of requested columns, resolve a batch of keys to rows and gather
// each requested column's values, filling nulls for missing keys.
package feastore

import (
	"fmt"
)

// TableReader serves Get against one TableView.
type TableReader struct {
	view *TableView
}

// newTableReader wraps a view that already has its columns parsed and
// key index built (done in openTableView).
func newTableReader(view *TableView) *TableReader {
	return &TableReader{view: view}
}

// Get resolves keys against the key index and gathers the requested
// columns, in the exact order and multiplicity of keys. Every output
// column is nullable: a missing key clears validity for that row across
// every requested column, regardless of the source column's nullability.
func (r *TableReader) Get(keys []string, columns []string) (*Batch, error) {
	for _, name := range columns {
		if name == r.view.schema.Key {
			continue
		}
		if _, ok := r.view.schema.Columns[name]; !ok {
			return nil, wrapErr(KindTableError, fmt.Sprintf("unknown column %q", name), ErrColumnUnknown)
		}
	}

	n := len(keys)
	locations := make([]keyLocation, n)
	found := make([]bool, n)
	for i, key := range keys {
		loc, ok := r.view.keyIdx.lookup(key)
		locations[i] = loc
		found[i] = ok
	}

	out := make(map[string]Array, len(columns))
	for _, name := range columns {
		col := r.view.columns[name]
		arr := gatherColumn(col, locations, found, n)
		out[name] = arr
	}

	return &Batch{Names: columns, Columns: out, NumRows: n}, nil
}

// gatherColumn builds one output Array of length n for col, given the
// already-resolved per-output-row locations. Read output is always
// nullable; the validity bitmap is allocated on the first null row (via
// Array.setValid), so an output with no nulls has a nil bitmap.
func gatherColumn(col *Column, locations []keyLocation, found []bool, n int) Array {
	switch col.DType {
	case DTypeFloat32:
		values := make([]float32, n)
		arr := Array{DType: DTypeFloat32, Float32Values: values, Len: n}
		for i := 0; i < n; i++ {
			if !found[i] {
				arr.setValid(i, false)
				continue
			}
			loc := locations[i]
			if !col.IsValid(loc.segmentID, loc.offset) {
				arr.setValid(i, false)
				continue
			}
			values[i] = col.Float32At(loc.segmentID, loc.offset)
		}
		return arr
	case DTypeUtf8:
		values := make([]string, n)
		arr := Array{DType: DTypeUtf8, Utf8Values: values, Len: n}
		for i := 0; i < n; i++ {
			if !found[i] {
				arr.setValid(i, false)
				continue
			}
			loc := locations[i]
			if !col.IsValid(loc.segmentID, loc.offset) {
				arr.setValid(i, false)
				continue
			}
			values[i] = col.Utf8At(loc.segmentID, loc.offset)
		}
		return arr
	default:
		return Array{}
	}
}
