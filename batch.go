// In-memory columnar batch type — the "ColumnarLib" domain.
//
// Batch is the shape both writers hand to add_segment and readers hand
// back from get(). Every output column from a read is nullable (§4.F: a
// missing key introduces nulls regardless of source nullability); input
// batches for write may mix nullable and non-nullable columns per schema.
package feastore

import "fmt"

// Array is a single column's values plus an optional validity bitmap.
// Exactly one of Float32Values/Utf8Values is populated, matching the
// column's DType. This is a closed, tagged sum rather than an interface
// with open implementations — the dtype universe is small and wire-bound
// (design note in spec §9).
type Array struct {
	DType        DType
	Float32Values []float32
	Utf8Values    []string
	// Validity is a packed bitmap, bit set = valid. Nil means every row is
	// valid: no row has been marked null (setValid allocates it on the
	// first null).
	Validity []uint64
	Len      int
}

// NewFloat32Array builds a non-nullable float32 array.
func NewFloat32Array(values []float32) Array {
	return Array{DType: DTypeFloat32, Float32Values: values, Len: len(values)}
}

// NewUtf8Array builds a non-nullable utf8 array.
func NewUtf8Array(values []string) Array {
	return Array{DType: DTypeUtf8, Utf8Values: values, Len: len(values)}
}

// IsValid reports whether row i is non-null. An array with a nil
// Validity bitmap is always valid (non-nullable, or nullable-but-no-nulls).
func (a *Array) IsValid(i int) bool {
	if a.Validity == nil {
		return true
	}
	return a.Validity[i/64]&(1<<uint(i%64)) != 0
}

func (a *Array) setValid(i int, valid bool) {
	if a.Validity == nil {
		if valid {
			return
		}
		a.Validity = newAllValidBitmap(a.Len)
	}
	if valid {
		a.Validity[i/64] |= 1 << uint(i%64)
	} else {
		a.Validity[i/64] &^= 1 << uint(i%64)
	}
}

// Batch is an ordered set of named columns, all with the same row count.
type Batch struct {
	// Columns preserves caller-requested order (read) or insertion order (write).
	Names   []string
	Columns map[string]Array
	NumRows int
}

// NewBatch builds a Batch from names in the given order, validating that
// every array has the same length. This is the "shape mismatch" check
// spec.md §7 calls out as a ColumnarLib error.
func NewBatch(names []string, columns map[string]Array) (*Batch, error) {
	n := -1
	for _, name := range names {
		arr, ok := columns[name]
		if !ok {
			return nil, wrapErr(KindColumnarLib, fmt.Sprintf("batch: column %q not provided", name), ErrMissingColumn)
		}
		if n == -1 {
			n = arr.Len
		} else if arr.Len != n {
			return nil, newErr(KindColumnarLib, fmt.Sprintf("batch: row count mismatch: column %q has %d rows, expected %d", name, arr.Len, n))
		}
	}
	if n == -1 {
		n = 0
	}
	return &Batch{Names: names, Columns: columns, NumRows: n}, nil
}

// Column looks up a column by name.
func (b *Batch) Column(name string) (Array, bool) {
	a, ok := b.Columns[name]
	return a, ok
}
