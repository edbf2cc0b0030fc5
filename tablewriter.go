// TableWriter implements §4.G: create or open a table against a
// TableDirectory, then append immutable segments one at a time.
package feastore

import "fmt"

// TableWriter appends segments to one table.
type TableWriter struct {
	dir      TableDirectory
	schema   TableSchema
	segments []SegmentInfo
}

// createTableWriter writes the catalog descriptor and starts a fresh
// table. Fails if one already exists at dir.
func createTableWriter(schema TableSchema, dir TableDirectory) (*TableWriter, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	idx, err := dir.Index()
	if err != nil {
		return nil, err
	}
	if idx != nil {
		return nil, ErrTableAlreadyExists
	}
	if err := dir.WriteCatalog(schema); err != nil {
		return nil, err
	}
	return &TableWriter{dir: dir, schema: schema}, nil
}

// openTableWriter loads an existing table's schema and segment list.
func openTableWriter(dir TableDirectory) (*TableWriter, error) {
	idx, err := dir.Index()
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrTableNotFound
	}
	return &TableWriter{dir: dir, schema: idx.Schema, segments: idx.Segments}, nil
}

// AddSegment type-checks batch against the schema, encodes each schema
// column via its codec, assembles a segment, and commits it through the
// table directory. Extra columns present in batch but not in the schema
// are ignored; every schema column must be present in batch.
func (w *TableWriter) AddSegment(batch *Batch) (SegmentInfo, error) {
	nextID := 0
	if n := len(w.segments); n > 0 {
		nextID = w.segments[n-1].ID + 1
	}

	names := w.schema.SortedColumnNames()
	entries := make([]footerEntry, len(names))
	payloads := make([][]byte, len(names))

	for i, name := range names {
		colSchema := w.schema.Columns[name]
		arr, ok := batch.Column(name)
		if !ok {
			return SegmentInfo{}, wrapErr(KindTableError, fmt.Sprintf("column %q missing from batch", name), ErrMissingColumn)
		}
		if arr.DType != colSchema.DType {
			return SegmentInfo{}, wrapErr(KindTableError, fmt.Sprintf("column %q: expected %s, got %s", name, colSchema.DType, arr.DType), ErrDTypeMismatch)
		}
		if name == w.schema.Key {
			if err := checkNoNulls(arr); err != nil {
				return SegmentInfo{}, err
			}
		}

		var payload []byte
		switch colSchema.DType {
		case DTypeFloat32:
			payload = encodeFloat32Column(arr, colSchema.Nullable)
		case DTypeUtf8:
			payload = encodeUtf8Column(arr, colSchema.Nullable)
		default:
			return SegmentInfo{}, newErr(KindTableError, "unknown column dtype")
		}
		entries[i] = footerEntry{Name: name}
		payloads[i] = payload
	}

	buf := writeSegment(entries, payloads)
	fileName := segmentFileName(nextID)
	size, err := w.dir.WriteSegment(fileName, buf)
	if err != nil {
		return SegmentInfo{}, err
	}

	info := SegmentInfo{ID: nextID, Size: size, FileName: fileName}
	w.segments = append(w.segments, info)
	return info, nil
}

func checkNoNulls(arr Array) error {
	if arr.Validity == nil {
		return nil
	}
	for i := 0; i < arr.Len; i++ {
		if !bitSet(arr.Validity, i) {
			return ErrNullKey
		}
	}
	return nil
}

// Segments returns the current segment list in commit order.
func (w *TableWriter) Segments() []SegmentInfo {
	return w.segments
}

// Schema returns the table's schema.
func (w *TableWriter) Schema() TableSchema {
	return w.schema
}
