// In-memory key index: key string -> (segment id, row offset within that
// segment's key column) (spec §4.E). Built once per TableView by scanning
// the key column of every segment in commit order; later segments
// overwrite earlier ones for the same key (last-segment-wins, spec §3).
package feastore

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Hash algorithm selection for the internal key index, mirroring the
// selectable-algorithm pattern used for record identifiers elsewhere in
// the ecosystem this codebase grew out of. This is purely an internal
// lookup-structure detail: it changes nothing about the O(1)-average,
// last-segment-wins lookup semantics spec.md §4.E requires.
const (
	HashXXHash3 = 1 // default, fastest
	HashFNV1a   = 2 // no external dependencies
	HashBlake2b = 3 // best distribution
)

func hashKey(key string, alg int) uint64 {
	switch alg {
	case HashFNV1a:
		h := fnv.New64a()
		h.Write([]byte(key))
		return h.Sum64()
	case HashBlake2b:
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(key))
		var v uint64
		for _, b := range h.Sum(nil) {
			v = v<<8 | uint64(b)
		}
		return v
	case HashXXHash3:
		fallthrough
	default:
		return xxh3.HashString(key)
	}
}

// keyLocation is where a key's row lives.
type keyLocation struct {
	segmentID int
	offset    int
}

// slot is one entry in the open-addressing table. An empty slot has
// used == false.
type slot struct {
	key      string
	location keyLocation
	used     bool
}

// keyIndex is an open-addressing hash table over string keys, probing
// linearly from hashKey(key, alg) mod len(slots). Doubles before any set
// that finds it at least half full, so the load factor never exceeds 0.5.
type keyIndex struct {
	alg   int
	slots []slot
	count int
}

func newKeyIndex(alg int) *keyIndex {
	if alg == 0 {
		alg = HashXXHash3
	}
	return &keyIndex{alg: alg, slots: make([]slot, 16)}
}

// set records (or overwrites) the location for key. Later calls for the
// same key win, matching the last-segment-wins scan order callers use.
func (idx *keyIndex) set(key string, segmentID, offset int) {
	if idx.count*2 >= len(idx.slots) {
		idx.grow()
	}
	i := idx.probe(key)
	if !idx.slots[i].used {
		idx.count++
	}
	idx.slots[i] = slot{key: key, location: keyLocation{segmentID: segmentID, offset: offset}, used: true}
}

// lookup returns the location for key, if any.
func (idx *keyIndex) lookup(key string) (keyLocation, bool) {
	i := idx.probe(key)
	if !idx.slots[i].used {
		return keyLocation{}, false
	}
	return idx.slots[i].location, true
}

func (idx *keyIndex) len() int {
	return idx.count
}

// probe returns the slot index for key: either its existing slot, or the
// first empty slot found while linearly probing from its hash bucket.
func (idx *keyIndex) probe(key string) int {
	n := len(idx.slots)
	i := int(hashKey(key, idx.alg) % uint64(n))
	for {
		if !idx.slots[i].used || idx.slots[i].key == key {
			return i
		}
		i = (i + 1) % n
	}
}

func (idx *keyIndex) grow() {
	old := idx.slots
	idx.slots = make([]slot, len(old)*2)
	idx.count = 0
	for _, s := range old {
		if s.used {
			idx.set(s.key, s.location.segmentID, s.location.offset)
		}
	}
}

// buildKeyIndex scans the key column of a table view's key Column, in
// segment-id order, recording the last-seen location for every key. A
// null key is never legal (spec §3's key invariants); a row at a null
// key position is returned as a KindSegmentError error, in
// decodeSegmentFooter's style of surfacing malformed input instead of
// panicking.
func buildKeyIndex(alg int, keyCol *Column) (*keyIndex, error) {
	if keyCol.DType != DTypeUtf8 {
		return nil, newErr(KindSegmentError, "key column must be utf8")
	}
	idx := newKeyIndex(alg)
	for segID := 0; segID < keyCol.NumSegments(); segID++ {
		n := keyCol.Len(segID)
		for off := 0; off < n; off++ {
			if !keyCol.IsValid(segID, off) {
				return nil, newErr(KindSegmentError, fmt.Sprintf("null key at segment %d offset %d", segID, off))
			}
			key := keyCol.Utf8At(segID, off)
			idx.set(key, segID, off)
		}
	}
	return idx, nil
}
