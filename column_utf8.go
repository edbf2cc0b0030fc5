// Dense utf8 column codec (spec §4.B).
//
// Wire format, all offsets relative to the start of the column payload:
//
//	[header: 20 bytes]
//	  num_values         u32 LE
//	  payload_offset     u32 LE
//	  payload_size       u32 LE
//	  null_bitmap_offset u32 LE
//	  null_bitmap_size   u32 LE
//	[value_offsets: num_values * 4 bytes (i32 LE), immediately after header]
//	[payload: payload_size bytes, at payload_offset]
//	[padding to 8-byte boundary]
//	[null_bitmap: null_bitmap_size bytes, at null_bitmap_offset]
//
// A string's byte range is [value_offsets[i], value_offsets[i+1]), except
// for the last value, whose end is payload_size.
package feastore

import "encoding/binary"

const utf8HeaderSize = 20

type utf8Header struct {
	numValues        uint32
	payloadOffset    uint32
	payloadSize      uint32
	nullBitmapOffset uint32
	nullBitmapSize   uint32
}

func parseUtf8Header(data []byte) (utf8Header, error) {
	if len(data) < utf8HeaderSize {
		return utf8Header{}, newErr(KindSegmentError, "dense string segment too small for header")
	}
	return utf8Header{
		numValues:        binary.LittleEndian.Uint32(data[0:4]),
		payloadOffset:    binary.LittleEndian.Uint32(data[4:8]),
		payloadSize:      binary.LittleEndian.Uint32(data[8:12]),
		nullBitmapOffset: binary.LittleEndian.Uint32(data[12:16]),
		nullBitmapSize:   binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// utf8Segment is a zero-copy view over one segment's dense utf8 column
// data.
type utf8Segment struct {
	header       utf8Header
	valueOffsets []byte // numValues * 4 bytes, i32 LE
	payload      []byte
	nulls        []uint64
}

func parseUtf8Segment(data []byte, nullable bool) (*utf8Segment, error) {
	header, err := parseUtf8Header(data)
	if err != nil {
		return nil, err
	}

	offsetsStart := utf8HeaderSize
	offsetsByteLen := int(header.numValues) * 4
	offsetsEnd := offsetsStart + offsetsByteLen
	if offsetsEnd > len(data) {
		return nil, newErr(KindSegmentError, "dense string segment truncated at value_offsets")
	}
	valueOffsets := data[offsetsStart:offsetsEnd]

	payloadEnd := int(header.payloadOffset) + int(header.payloadSize)
	if payloadEnd > len(data) {
		return nil, newErr(KindSegmentError, "dense string segment truncated at payload")
	}
	payload := data[header.payloadOffset:payloadEnd]

	nulls, err := parseNullBitmap(data, int(header.nullBitmapOffset), header.nullBitmapSize, nullable, "dense string")
	if err != nil {
		return nil, err
	}

	return &utf8Segment{header: header, valueOffsets: valueOffsets, payload: payload, nulls: nulls}, nil
}

// Len reports the number of values in this segment's column.
func (s *utf8Segment) Len() int {
	return int(s.header.numValues)
}

// IsValid reports whether value i is non-null.
func (s *utf8Segment) IsValid(i int) bool {
	if s.nulls == nil {
		return true
	}
	return bitSet(s.nulls, i)
}

// stringRange returns the byte range of value i within the payload.
func (s *utf8Segment) stringRange(i int) (int, int) {
	start := int(int32(binary.LittleEndian.Uint32(s.valueOffsets[i*4:])))
	var end int
	if i+1 < int(s.header.numValues) {
		end = int(int32(binary.LittleEndian.Uint32(s.valueOffsets[(i+1)*4:])))
	} else {
		end = int(s.header.payloadSize)
	}
	return start, end
}

// Value returns the string at index i, undefined if IsValid is false.
func (s *utf8Segment) Value(i int) string {
	start, end := s.stringRange(i)
	return string(s.payload[start:end])
}

// encodeUtf8Column serializes a utf8 Array into the wire format above.
func encodeUtf8Column(a Array, nullable bool) []byte {
	n := a.Len
	offsets := make([]int32, n)
	var payload []byte
	for i := 0; i < n; i++ {
		offsets[i] = int32(len(payload))
		if a.Validity == nil || bitSet(a.Validity, i) {
			payload = append(payload, a.Utf8Values[i]...)
		}
	}
	payloadSize := len(payload)

	var bitmapBytes []byte
	if nullable && a.Validity != nil {
		bitmapBytes = bitmapToBytes(a.Validity)
	}

	offsetsByteLen := n * 4
	payloadOffset := utf8HeaderSize + offsetsByteLen
	bitmapUnpadded := payloadOffset + payloadSize
	payloadPadding := align8Padding(bitmapUnpadded)
	nullBitmapOffset := bitmapUnpadded + payloadPadding

	buf := make([]byte, nullBitmapOffset+len(bitmapBytes))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(payloadOffset))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(payloadSize))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(nullBitmapOffset))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(bitmapBytes)))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(buf[utf8HeaderSize+i*4:], uint32(off))
	}
	copy(buf[payloadOffset:], payload)
	copy(buf[nullBitmapOffset:], bitmapBytes)
	return buf
}
