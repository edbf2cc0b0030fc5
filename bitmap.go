// Null bitmap helpers shared by the float32 and utf8 column codecs.
//
// Convention (spec §4.B): bit set = valid, bit clear = null, packed into
// u64 LE words. A nullable column with no nulls emits an empty bitmap; a
// non-nullable column never emits one.
package feastore

// bitmapWords returns the number of u64 words needed for n bits.
func bitmapWords(n int) int {
	return (n + 63) / 64
}

// newAllValidBitmap returns a bitmap with the first n bits set and any
// trailing bits in the final word masked off.
func newAllValidBitmap(n int) []uint64 {
	words := make([]uint64, bitmapWords(n))
	for i := range words {
		words[i] = ^uint64(0)
	}
	maskTrailingBits(words, n)
	return words
}

// maskTrailingBits clears bits at positions >= n within the final word,
// so trailing bits past the logical length never read as spuriously valid.
func maskTrailingBits(words []uint64, n int) {
	if len(words) == 0 {
		return
	}
	rem := n % 64
	if rem == 0 {
		return
	}
	words[len(words)-1] &= (uint64(1) << uint(rem)) - 1
}

// bitSet reports whether bit i is set in a packed word slice.
func bitSet(words []uint64, i int) bool {
	return words[i/64]&(1<<uint(i%64)) != 0
}

// encodeBitmap builds the on-wire bitmap for an array's validity, per the
// write contract in bitmap.rs: returns nil (empty, zero bytes) if the
// column is non-nullable or the array has no validity bitmap; otherwise
// returns validity unchanged.
func encodeBitmap(nullable bool, validity []uint64, n int) []uint64 {
	if !nullable || validity == nil {
		return nil
	}
	// validity is already a full bitmap (array.setValid lazily allocates
	// one on first null), so it's already in wire form.
	return validity
}

// bitmapToBytes packs words into their little-endian wire encoding.
func bitmapToBytes(words []uint64) []byte {
	buf := make([]byte, len(words)*8)
	for i, w := range words {
		putUint64LE(buf[i*8:], w)
	}
	return buf
}

// bitmapFromBytes unpacks a little-endian byte slice into u64 words. b's
// length must be a multiple of 8; callers validate this beforehand.
func bitmapFromBytes(b []byte) []uint64 {
	words := make([]uint64, len(b)/8)
	for i := range words {
		words[i] = uint64LE(b[i*8:])
	}
	return words
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func uint64LE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

// parseNullBitmap reads a bitmap from data at the given byte offset and
// size, returning nil if the column is non-nullable or the segment
// carries no bitmap (nullable column with no nulls).
func parseNullBitmap(data []byte, offset int, size uint32, nullable bool, typeName string) ([]uint64, error) {
	if !nullable || size == 0 {
		return nil, nil
	}
	byteLen := int(size)
	if offset+byteLen > len(data) {
		return nil, newErr(KindSegmentError, typeName+" segment truncated at null_bitmap")
	}
	if byteLen%8 != 0 {
		return nil, newErr(KindSegmentError, typeName+" segment has misaligned null_bitmap")
	}
	return bitmapFromBytes(data[offset : offset+byteLen]), nil
}
