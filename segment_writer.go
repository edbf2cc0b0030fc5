package feastore

// writeSegment assembles the full byte image of a .seg file from a set of
// named column payloads, in schema order. Each payload is padded to an
// 8-byte boundary before the next one starts, and before the footer.
func writeSegment(columns []footerEntry, payloads [][]byte) []byte {
	// footerEntry.Offset/Size are filled in as payloads are laid out.
	buf := make([]byte, 0, segmentHeaderSize+estimateSize(payloads))
	buf = append(buf, segmentMagic...)
	buf = appendUint32(buf, segmentVersion)

	entries := make([]footerEntry, len(columns))
	for i, payload := range payloads {
		offset := uint32(len(buf))
		buf = append(buf, payload...)
		pad := align8Padding(len(payload))
		if pad > 0 {
			buf = append(buf, make([]byte, pad)...)
		}
		entries[i] = footerEntry{Name: columns[i].Name, Offset: offset, Size: uint32(len(payload))}
	}

	footer := &segmentFooter{Columns: entries}
	buf = footer.encode(buf)
	return buf
}

func estimateSize(payloads [][]byte) int {
	n := 0
	for _, p := range payloads {
		n += len(p) + 8
	}
	return n
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
