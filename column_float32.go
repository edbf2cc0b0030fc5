// Dense float32 column codec (spec §4.B).
//
// Wire format, all offsets relative to the start of the column payload:
//
//	[header: 16 bytes]
//	  num_values         u32 LE
//	  payload_offset     u32 LE
//	  null_bitmap_offset u32 LE
//	  null_bitmap_size   u32 LE
//	[payload: num_values * 4 bytes, at payload_offset]
//	[padding to 8-byte boundary]
//	[null_bitmap: null_bitmap_size bytes, at null_bitmap_offset]
package feastore

import (
	"encoding/binary"
	"math"
)

const float32HeaderSize = 16

type float32Header struct {
	numValues        uint32
	payloadOffset    uint32
	nullBitmapOffset uint32
	nullBitmapSize   uint32
}

func parseFloat32Header(data []byte) (float32Header, error) {
	if len(data) < float32HeaderSize {
		return float32Header{}, newErr(KindSegmentError, "dense float32 segment too small for header")
	}
	return float32Header{
		numValues:        binary.LittleEndian.Uint32(data[0:4]),
		payloadOffset:    binary.LittleEndian.Uint32(data[4:8]),
		nullBitmapOffset: binary.LittleEndian.Uint32(data[8:12]),
		nullBitmapSize:   binary.LittleEndian.Uint32(data[12:16]),
	}, nil
}

// float32Segment is a zero-copy view over one segment's dense float32
// column data.
type float32Segment struct {
	header  float32Header
	payload []byte // numValues * 4 bytes, native LE
	nulls   []uint64
}

func parseFloat32Segment(data []byte, nullable bool) (*float32Segment, error) {
	header, err := parseFloat32Header(data)
	if err != nil {
		return nil, err
	}

	payloadByteLen := int(header.numValues) * 4
	payloadEnd := int(header.payloadOffset) + payloadByteLen
	if payloadEnd > len(data) {
		return nil, newErr(KindSegmentError, "dense float32 segment truncated at payload")
	}
	payload := data[header.payloadOffset:payloadEnd]

	nulls, err := parseNullBitmap(data, int(header.nullBitmapOffset), header.nullBitmapSize, nullable, "dense float32")
	if err != nil {
		return nil, err
	}

	return &float32Segment{header: header, payload: payload, nulls: nulls}, nil
}

// Len reports the number of values in this segment's column.
func (s *float32Segment) Len() int {
	return int(s.header.numValues)
}

// IsValid reports whether value i is non-null.
func (s *float32Segment) IsValid(i int) bool {
	if s.nulls == nil {
		return true
	}
	return bitSet(s.nulls, i)
}

// Value returns the raw float32 at index i, undefined if IsValid is false.
func (s *float32Segment) Value(i int) float32 {
	bits := binary.LittleEndian.Uint32(s.payload[i*4:])
	return math.Float32frombits(bits)
}

// encodeFloat32Column serializes a float32 Array into the wire format
// above, matching the nullability contract: a non-nullable array never
// emits a bitmap; a nullable array with no nulls emits an empty one.
func encodeFloat32Column(a Array, nullable bool) []byte {
	n := a.Len
	payloadByteLen := n * 4
	payload := make([]byte, payloadByteLen)
	for i := 0; i < n; i++ {
		var v float32
		if a.Validity == nil || bitSet(a.Validity, i) {
			v = a.Float32Values[i]
		}
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	var bitmapBytes []byte
	if nullable && a.Validity != nil {
		bitmapBytes = bitmapToBytes(a.Validity)
	}

	payloadOffset := float32HeaderSize
	payloadPadding := align8Padding(float32HeaderSize + payloadByteLen)
	nullBitmapOffset := float32HeaderSize + payloadByteLen + payloadPadding

	buf := make([]byte, nullBitmapOffset+len(bitmapBytes))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(payloadOffset))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(nullBitmapOffset))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(bitmapBytes)))
	copy(buf[payloadOffset:], payload)
	copy(buf[nullBitmapOffset:], bitmapBytes)
	return buf
}
