// Column aggregates one named column's parsed view across every segment
// of a table, in segment-id order, so the reader can address a row by
// (segment_id, segment_offset) without re-parsing per lookup (spec §9's
// design note on polymorphic columns — a closed tagged union over the
// two segment view types, rather than an interface with per-dtype
// implementations).
package feastore

// Column is the per-table, per-name view over every segment's parsed
// column data. Exactly one of float32Segs/utf8Segs is populated.
type Column struct {
	Name     string
	DType    DType
	Nullable bool

	float32Segs []*float32Segment
	utf8Segs    []*utf8Segment
}

// newFloat32Column builds a Column from parsed per-segment views, indexed
// by segment id (segs[i] is nil if no segment with that id carries data,
// which never happens for a configured column but keeps the slice dense).
func newFloat32Column(name string, nullable bool, segs []*float32Segment) *Column {
	return &Column{Name: name, DType: DTypeFloat32, Nullable: nullable, float32Segs: segs}
}

func newUtf8Column(name string, nullable bool, segs []*utf8Segment) *Column {
	return &Column{Name: name, DType: DTypeUtf8, Nullable: nullable, utf8Segs: segs}
}

// IsValid reports whether the value at (segmentID, offset) is non-null.
func (c *Column) IsValid(segmentID, offset int) bool {
	switch c.DType {
	case DTypeFloat32:
		return c.float32Segs[segmentID].IsValid(offset)
	case DTypeUtf8:
		return c.utf8Segs[segmentID].IsValid(offset)
	default:
		return false
	}
}

// Float32At returns the raw value at (segmentID, offset). Callers must
// check DType == DTypeFloat32 first.
func (c *Column) Float32At(segmentID, offset int) float32 {
	return c.float32Segs[segmentID].Value(offset)
}

// Utf8At returns the string value at (segmentID, offset). Callers must
// check DType == DTypeUtf8 first.
func (c *Column) Utf8At(segmentID, offset int) string {
	return c.utf8Segs[segmentID].Value(offset)
}

// Len returns the row count of the segment at segmentID for this column.
func (c *Column) Len(segmentID int) int {
	switch c.DType {
	case DTypeFloat32:
		return c.float32Segs[segmentID].Len()
	case DTypeUtf8:
		return c.utf8Segs[segmentID].Len()
	default:
		return 0
	}
}

// NumSegments reports how many segments this column spans.
func (c *Column) NumSegments() int {
	switch c.DType {
	case DTypeFloat32:
		return len(c.float32Segs)
	case DTypeUtf8:
		return len(c.utf8Segs)
	default:
		return 0
	}
}
