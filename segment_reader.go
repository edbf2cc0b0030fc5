// Opening a single .seg file read-only and exposing its named column
// byte ranges (spec §4.C). The reader validates segment-level
// invariants only; it never interprets column contents — that is the
// column codec's job (column_float32.go, column_utf8.go).
package feastore

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const segmentFileExt = ".seg"

// segmentFileName returns the canonical 8-digit zero-padded filename for
// a segment id, so lexical sort equals numeric sort (spec §4.D).
func segmentFileName(id int) string {
	return fmt.Sprintf("%08d%s", id, segmentFileExt)
}

// segmentIDFromFileName parses the numeric stem of a segment filename.
// Returns ok=false for names that don't match the canonical pattern.
func segmentIDFromFileName(name string) (int, bool) {
	if !strings.HasSuffix(name, segmentFileExt) {
		return 0, false
	}
	stem := strings.TrimSuffix(name, segmentFileExt)
	if len(stem) != 8 {
		return 0, false
	}
	id, err := strconv.Atoi(stem)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// segment is a read-only handle on one mapped .seg file. The mapping is
// held for the lifetime of the handle; Close releases it.
type segment struct {
	id      int
	data    []byte // whole file; memory-mapped when mapped is true
	mapped  bool
	columns map[string][]byte
	file    *os.File
}

// openSegment memory-maps path, validates the container-level invariants
// from spec §4.A, and builds a name -> byte-range map.
func openSegment(id int, path string) (*segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(KindIo, "open segment", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIo, "stat segment", err)
	}
	size := int(info.Size())

	if size < segmentHeaderSize+footerLengthSize {
		f.Close()
		return nil, newErr(KindSegmentError, "file too small")
	}

	data, err := mmapFile(int(f.Fd()), size)
	if err != nil {
		f.Close()
		return nil, wrapErr(KindIo, "mmap segment", err)
	}

	seg, err := parseSegment(id, data)
	if err != nil {
		munmapFile(data)
		f.Close()
		return nil, err
	}
	seg.file = f
	seg.mapped = true
	return seg, nil
}

// parseSegment validates the header and footer of an already-mapped
// segment and builds the column byte-range map. Split out from
// openSegment so tests can exercise format validation against in-memory
// buffers without touching the filesystem.
func parseSegment(id int, data []byte) (*segment, error) {
	if string(data[:4]) != segmentMagic {
		return nil, wrapErr(KindSegmentError, "bad magic", errSegmentFormat)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != segmentVersion {
		return nil, newErr(KindSegmentError, fmt.Sprintf("unsupported version %d", version))
	}

	footer, err := decodeSegmentFooter(data)
	if err != nil {
		return nil, err
	}

	footerLen := int(binary.LittleEndian.Uint32(data[len(data)-footerLengthSize:]))
	dataRegionEnd := len(data) - footerLengthSize - footerLen

	columns := make(map[string][]byte, len(footer.Columns))
	for _, e := range footer.Columns {
		start := int(e.Offset)
		end := start + int(e.Size)
		if start < segmentHeaderSize || end > dataRegionEnd || start > end {
			return nil, newErr(KindSegmentError, fmt.Sprintf("column range exceeds data region: %q [%d,%d)", e.Name, start, end))
		}
		columns[e.Name] = data[start:end]
	}

	return &segment{id: id, data: data, columns: columns}, nil
}

// Column returns the byte slice for a named column payload, or false if
// this segment does not have it (should not happen for columns declared
// in the table schema — every configured column is present in every
// segment per spec §3).
func (s *segment) Column(name string) ([]byte, bool) {
	b, ok := s.columns[name]
	return b, ok
}

// ColumnNames returns the set of column names present in this segment.
func (s *segment) ColumnNames() []string {
	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	return names
}

// validateSegmentSize is a cheap structural self-check run at directory
// index time (spec.md §4.D invariants, supplemented per SPEC_FULL.md
// §C.4): it reads only the trailing footer-length-size bytes for the
// footer length, then the footer itself, and confirms that no column
// range the footer lists extends past the data region before the footer
// — without mapping or parsing the whole file. Extra bytes after the last
// column range are not rejected.
func validateSegmentSize(path string, size int64) error {
	if size < int64(segmentHeaderSize+footerLengthSize) {
		return newErr(KindSegmentError, fmt.Sprintf("%s: file too small", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return wrapErr(KindIo, "open segment for validation", err)
	}
	defer f.Close()

	lenBuf := make([]byte, footerLengthSize)
	if _, err := f.ReadAt(lenBuf, size-int64(footerLengthSize)); err != nil {
		return wrapErr(KindIo, "reading footer length", err)
	}
	footerLen := int64(uint32(lenBuf[0]) | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])<<16 | uint32(lenBuf[3])<<24)

	tailSize := footerLen + int64(footerLengthSize)
	if tailSize > size {
		return newErr(KindSegmentError, fmt.Sprintf("%s: truncated footer", path))
	}
	tail := make([]byte, tailSize)
	if _, err := f.ReadAt(tail, size-tailSize); err != nil {
		return wrapErr(KindIo, "reading footer", err)
	}

	footer, err := decodeSegmentFooter(tail)
	if err != nil {
		return err
	}

	dataRegionEnd := size - tailSize
	maxEnd := int64(0)
	for _, e := range footer.Columns {
		end := int64(e.Offset) + int64(e.Size)
		if end > maxEnd {
			maxEnd = end
		}
	}
	if maxEnd > dataRegionEnd {
		return newErr(KindSegmentError, fmt.Sprintf("%s: column range exceeds file size", path))
	}

	return nil
}

// Close releases the memory mapping (if any) and the underlying file
// handle (if any). A segment built from an in-memory buffer (e.g. the
// S3-backed directory) has neither and Close simply drops the reference.
func (s *segment) Close() error {
	var err error
	if s.mapped && s.data != nil {
		err = munmapFile(s.data)
	}
	s.data = nil
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
