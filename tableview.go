// TableView is a consistent, immutable snapshot of one table's committed
// segments: every segment open and mmapped, plus the derived per-column
// views and key index built from them (spec §4.E/§4.F). A new TableView
// is built on every successful write and swapped into the registry
// atomically; readers already holding the old one keep working against
// it until their request completes.
package feastore

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TableView holds everything a read needs: the schema, one Column per
// schema column (aggregated across segments), and the key index.
//
// A view is reference-counted rather than closed the instant a newer one
// is installed: the registry's own slot counts as one reference, and
// every in-flight Registry.Read acquires a second one before it starts
// gathering and releases it when done. Segments are only munmapped once
// the count reaches zero, so a reader that grabbed this snapshot a
// moment before a write commits keeps reading valid memory until its
// own request finishes (spec.md §3/§5, GLOSSARY "Reader snapshot").
type TableView struct {
	schema   TableSchema
	segments []*segment // index == segment id
	columns  map[string]*Column
	keyIdx   *keyIndex

	mu   sync.Mutex
	refs int
}

// openTableView opens every segment listed in idx concurrently (segment
// opens are pure I/O plus a cheap footer parse, so they parallelize
// well), builds the per-column aggregated views, and constructs the key
// index by scanning the key column once.
func openTableView(dir TableDirectory, schema TableSchema, infos []SegmentInfo, hashAlg int) (*TableView, error) {
	segments := make([]*segment, len(infos))

	var g errgroup.Group
	var mu sync.Mutex
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			seg, err := dir.OpenSegment(info.ID, info.FileName)
			if err != nil {
				return fmt.Errorf("opening segment %d: %w", info.ID, err)
			}
			mu.Lock()
			segments[i] = seg
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range segments {
			if s != nil {
				s.Close()
			}
		}
		return nil, err
	}

	columns := make(map[string]*Column, len(schema.Columns))
	for _, name := range schema.SortedColumnNames() {
		colSchema := schema.Columns[name]
		col, err := buildColumn(name, colSchema, segments)
		if err != nil {
			for _, s := range segments {
				s.Close()
			}
			return nil, err
		}
		columns[name] = col
	}

	keyIdx, err := buildKeyIndex(hashAlg, columns[schema.Key])
	if err != nil {
		for _, s := range segments {
			s.Close()
		}
		return nil, err
	}

	return &TableView{schema: schema, segments: segments, columns: columns, keyIdx: keyIdx, refs: 1}, nil
}

func buildColumn(name string, colSchema ColumnSchema, segments []*segment) (*Column, error) {
	switch colSchema.DType {
	case DTypeFloat32:
		views := make([]*float32Segment, len(segments))
		for i, seg := range segments {
			data, ok := seg.Column(name)
			if !ok {
				return nil, newErr(KindSegmentError, fmt.Sprintf("segment %d missing column %q", seg.id, name))
			}
			view, err := parseFloat32Segment(data, colSchema.Nullable)
			if err != nil {
				return nil, err
			}
			views[i] = view
		}
		return newFloat32Column(name, colSchema.Nullable, views), nil
	case DTypeUtf8:
		views := make([]*utf8Segment, len(segments))
		for i, seg := range segments {
			data, ok := seg.Column(name)
			if !ok {
				return nil, newErr(KindSegmentError, fmt.Sprintf("segment %d missing column %q", seg.id, name))
			}
			view, err := parseUtf8Segment(data, colSchema.Nullable)
			if err != nil {
				return nil, err
			}
			views[i] = view
		}
		return newUtf8Column(name, colSchema.Nullable, views), nil
	default:
		return nil, newErr(KindTableError, "unknown column dtype")
	}
}

// acquire adds a reference, keeping the view (and its segment mappings)
// alive until a matching release. Call this while still holding the
// registry lock that guards against the view being swapped out from
// under the caller.
func (v *TableView) acquire() {
	v.mu.Lock()
	v.refs++
	v.mu.Unlock()
}

// release drops one reference, unmapping every segment once the count
// reaches zero. Close is the registry's own release of its slot
// reference; readers call release directly via acquire/release pairs.
func (v *TableView) release() error {
	v.mu.Lock()
	v.refs--
	remaining := v.refs
	v.mu.Unlock()
	if remaining > 0 {
		return nil
	}
	var err error
	for _, s := range v.segments {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Close releases the registry's own reference to the view. If a read
// acquired a reference and is still in flight, the segments stay mapped
// until that reader releases its own reference.
func (v *TableView) Close() error {
	return v.release()
}

// NumSegments reports how many segments this view spans.
func (v *TableView) NumSegments() int {
	return len(v.segments)
}
