package bitmap

import (
	"errors"
	"fmt"
)

// ErrAdjacentMarkBits is the debug-only invariant violation for an
// object-start bitmap byte with two adjacent set bits (spec §7,
// InvariantViolation: "object-start bitmap with two adjacent set bits").
// Objects are at least two words, so no valid byte can set two neighboring
// bits; AssertNoAdjacentBits reports this condition instead of silently
// misreading the cell.
var ErrAdjacentMarkBits = errors.New("bitmap: object-start byte has two adjacent set bits")

// startEntry is one row of the object-start decode table: how many object
// starts a byte value encodes, and at which bit offsets (0-7).
type startEntry struct {
	count   uint8
	offsets [4]uint8
}

// startTable has 256 entries, one per possible byte value; entries whose
// byte has two adjacent set bits (impossible for a legal object-start
// bitmap, since every object is at least two words) are left zero-valued
// and only ever consulted under AssertNoAdjacentBits. ValidStartByteCount
// reports how many of the 256 rows are legal for a given cell width.
var startTable [256]startEntry
var startValid [256]bool

func init() {
	for v := 0; v < 256; v++ {
		valid := true
		for i := 0; i < 7; i++ {
			if v&(1<<uint(i)) != 0 && v&(1<<uint(i+1)) != 0 {
				valid = false
				break
			}
		}
		startValid[v] = valid
		if !valid {
			continue
		}
		var e startEntry
		for i := 0; i < 8; i++ {
			if v&(1<<uint(i)) != 0 {
				e.offsets[e.count] = uint8(i)
				e.count++
			}
		}
		startTable[v] = e
	}
	if n := ValidStartByteCount(); n != 55 {
		panic(fmt.Sprintf("bitmap: startTable has %d legal object-start entries, want 55", n))
	}
}

// ValidStartByteCount returns how many of the 256 possible byte values
// encode a legal (no-adjacent-bits) set of object starts: 55, since every
// object is at least two words and a byte can set at most 4 non-adjacent
// bits out of 8. Spec §4.1 describes a 171-row table for this same
// invariant, sized for the original implementation's bit-pair indexing
// convention rather than this table's per-byte-value addressing; wired here
// as a debug self-check on init, and pinned by a regression test, instead of
// left as dead exported plumbing.
func ValidStartByteCount() int {
	n := 0
	for _, ok := range startValid {
		if ok {
			n++
		}
	}
	return n
}

// MarkWordToObjectStarts decodes the set bits of one 32-bit cell into the
// word offsets (relative to the cell's first word) where a live object
// starts. It is the sweeper's inner loop (spec §4.1): it is called once per
// live cell per page, so it works one byte at a time against the
// precomputed table rather than looping bit-by-bit.
//
// out must have capacity for at least 32 entries (the worst case: every
// other bit set). Returns the number of offsets written, or an error if a
// byte of the cell violates the "no two adjacent bits" invariant.
func MarkWordToObjectStarts(cell uint32, out []int) (int, error) {
	n := 0
	for byteIdx := 0; byteIdx < 4; byteIdx++ {
		b := byte(cell >> uint(byteIdx*8))
		if b == 0 {
			continue
		}
		if !startValid[b] {
			return n, ErrAdjacentMarkBits
		}
		e := startTable[b]
		base := byteIdx * 8
		for i := 0; i < int(e.count); i++ {
			out[n] = base + int(e.offsets[i])
			n++
		}
	}
	return n, nil
}

// AssertNoAdjacentBits panics if cell encodes any byte with two adjacent set
// bits. Intended for debug builds only (spec §7: InvariantViolation checks
// "are fatal assertions in debug builds and not checked in release").
func AssertNoAdjacentBits(cell uint32) {
	var scratch [32]int
	if _, err := MarkWordToObjectStarts(cell, scratch[:]); err != nil {
		panic(err)
	}
}
