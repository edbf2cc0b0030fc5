// TableDirectory is the storage abstraction a table is built on (spec
// §4.D): one table per directory, segments are immutable files named by
// a zero-padded numeric id, plus a catalog descriptor recording the
// table's schema. LocalTableDirectory is the required filesystem-backed
// implementation; tabledir_s3.go adds an optional object-store one
// behind the same interface.
package feastore

import (
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const catalogFileName = "table.json"

// SegmentInfo describes one committed segment file.
type SegmentInfo struct {
	ID       int
	Size     int64
	FileName string
}

// CatalogIndex is what TableDirectory.Index returns: the table's schema
// plus every committed segment, in commit order.
type CatalogIndex struct {
	Schema   TableSchema
	Segments []SegmentInfo
}

// TableDirectory is the storage backend a table lives on. Exactly one
// table occupies a given directory/prefix.
type TableDirectory interface {
	// Index returns the table's catalog and segment listing, or
	// (nil, nil) if no table has been created at this location yet.
	Index() (*CatalogIndex, error)

	// WriteCatalog persists the table schema as the catalog descriptor.
	WriteCatalog(schema TableSchema) error

	// WriteSegment durably commits a finished segment's bytes under the
	// given file name and returns its size once visible.
	WriteSegment(fileName string, data []byte) (int64, error)

	// OpenSegment returns a read-only handle for segment id, given the
	// file name recorded in the catalog.
	OpenSegment(id int, fileName string) (*segment, error)
}

// LocalTableDirectory is the required filesystem-backed implementation.
type LocalTableDirectory struct {
	path string
}

// NewLocalTableDirectory returns a TableDirectory rooted at path, which
// is created on first write if it does not already exist.
func NewLocalTableDirectory(path string) *LocalTableDirectory {
	return &LocalTableDirectory{path: path}
}

func (d *LocalTableDirectory) Index() (*CatalogIndex, error) {
	catalogPath := filepath.Join(d.path, catalogFileName)
	data, err := os.ReadFile(catalogPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(KindIo, "reading table catalog", err)
	}

	var schema TableSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, wrapErr(KindConfigParsing, "parsing table catalog", err)
	}

	segments, err := d.scanSegments()
	if err != nil {
		return nil, err
	}
	return &CatalogIndex{Schema: schema, Segments: segments}, nil
}

func (d *LocalTableDirectory) scanSegments() ([]SegmentInfo, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, wrapErr(KindIo, "reading table directory", err)
	}

	var infos []SegmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := segmentIDFromFileName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, wrapErr(KindIo, "stat segment file", err)
		}
		size := info.Size()
		if err := validateSegmentSize(filepath.Join(d.path, entry.Name()), size); err != nil {
			return nil, err
		}
		infos = append(infos, SegmentInfo{ID: id, Size: size, FileName: entry.Name()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].FileName < infos[j].FileName })
	return infos, nil
}

func (d *LocalTableDirectory) WriteCatalog(schema TableSchema) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return wrapErr(KindIo, "creating table directory", err)
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return wrapErr(KindConfigParsing, "serializing table catalog", err)
	}
	return d.writeAtomic(catalogFileName, data)
}

func (d *LocalTableDirectory) WriteSegment(fileName string, data []byte) (int64, error) {
	if err := d.writeAtomic(fileName, data); err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(d.path, fileName))
	if err != nil {
		return 0, wrapErr(KindIo, "stat written segment", err)
	}
	return info.Size(), nil
}

// writeAtomic writes to a uuid-suffixed temp file in the same directory
// then renames it into place, so a reader never observes a partially
// written segment or catalog.
func (d *LocalTableDirectory) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return wrapErr(KindIo, "creating table directory", err)
	}
	tmpName := name + "." + uuid.NewString() + ".tmp"
	tmpPath := filepath.Join(d.path, tmpName)
	finalPath := filepath.Join(d.path, name)

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return wrapErr(KindIo, "writing temp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return wrapErr(KindIo, "renaming into place", err)
	}
	return nil
}

func (d *LocalTableDirectory) OpenSegment(id int, fileName string) (*segment, error) {
	return openSegment(id, filepath.Join(d.path, fileName))
}
