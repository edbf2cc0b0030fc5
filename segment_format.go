// The .seg binary container: magic, version, column payloads, footer.
//
// Layout (spec §4.A):
//
//	[magic: 4 bytes = "MURR"]
//	[version: u32 LE]
//	[column payloads, each 8-byte aligned, in write order]
//	[segment footer]
//	[footer length: u32 LE]               <- always last 4 bytes
//
// The footer uses a fixed-width little-endian encoding (feastore's
// analogue of the original implementation's "bincode fixint LE" wire
// convention, see SPEC_FULL.md §C.1): a u32 entry count, then per entry a
// u32 name length, the name bytes, a u32 offset and a u32 size. This is
// hand-rolled with encoding/binary rather than pulled in from a generic
// serialization library — the format is small, fully pinned by the spec,
// and needs to be stable across implementations in other languages, so a
// bespoke fixed encoding is clearer than a general-purpose one.
package feastore

import (
	"encoding/binary"
	"fmt"
)

const (
	segmentMagic        = "MURR"
	segmentVersion       = uint32(2)
	segmentHeaderSize    = 8 // magic (4) + version (4)
	footerLengthSize     = 4
)

// align8Padding returns the number of zero bytes needed to pad len up to
// the next 8-byte boundary.
func align8Padding(n int) int {
	return (8 - (n % 8)) % 8
}

// footerEntry is one column's byte range within a segment file.
type footerEntry struct {
	Name   string
	Offset uint32
	Size   uint32
}

// segmentFooter lists every column payload's byte range within a segment.
type segmentFooter struct {
	Columns []footerEntry
}

// encode serializes the footer using the fixed-width LE convention
// described in the package doc, appending it (plus its own u32 LE
// length) to buf.
func (f *segmentFooter) encode(buf []byte) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Columns)))
	for _, e := range f.Columns {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Name)))
		buf = append(buf, e.Name...)
		buf = binary.LittleEndian.AppendUint32(buf, e.Offset)
		buf = binary.LittleEndian.AppendUint32(buf, e.Size)
	}
	footerLen := uint32(len(buf) - start)
	buf = binary.LittleEndian.AppendUint32(buf, footerLen)
	return buf
}

// decodeSegmentFooter reads the trailing u32 LE footer length from data
// and decodes the footer immediately preceding it. data is the whole
// segment file (or file tail); offsets inside entries remain absolute to
// the start of the file.
func decodeSegmentFooter(data []byte) (*segmentFooter, error) {
	if len(data) < footerLengthSize {
		return nil, wrapErr(KindSegmentError, "file too small for footer length", errSegmentFormat)
	}
	footerLen := binary.LittleEndian.Uint32(data[len(data)-footerLengthSize:])
	footerEnd := len(data) - footerLengthSize
	if int(footerLen) > footerEnd {
		return nil, wrapErr(KindSegmentError, "truncated footer", errSegmentFormat)
	}
	start := footerEnd - int(footerLen)
	b := data[start:footerEnd]

	count, b, err := readUint32(b)
	if err != nil {
		return nil, wrapErr(KindSegmentError, "truncated footer", err)
	}
	entries := make([]footerEntry, 0, count)
	seen := make(map[string]struct{}, count)
	for i := uint32(0); i < count; i++ {
		nameLen, rest, err := readUint32(b)
		if err != nil {
			return nil, wrapErr(KindSegmentError, "truncated footer", err)
		}
		if uint32(len(rest)) < nameLen {
			return nil, wrapErr(KindSegmentError, "truncated footer", errSegmentFormat)
		}
		name := string(rest[:nameLen])
		rest = rest[nameLen:]
		offset, rest, err := readUint32(rest)
		if err != nil {
			return nil, wrapErr(KindSegmentError, "truncated footer", err)
		}
		size, rest, err := readUint32(rest)
		if err != nil {
			return nil, wrapErr(KindSegmentError, "truncated footer", err)
		}
		if _, dup := seen[name]; dup {
			return nil, newErr(KindSegmentError, fmt.Sprintf("duplicate column name %q in footer", name))
		}
		seen[name] = struct{}{}
		entries = append(entries, footerEntry{Name: name, Offset: offset, Size: size})
		b = rest
	}
	return &segmentFooter{Columns: entries}, nil
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errSegmentFormat
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

var errSegmentFormat = newErr(KindSegmentError, "malformed segment")
