// Package addr provides the machine-address arithmetic shared by every
// heap-facing package: pages, bitmaps, the marking stack, and the scavenger
// all index into memory through an Addr rather than a raw uintptr so that
// alignment and distance computations live in one place.
package addr

import "fmt"

// WordSize is the size, in bytes, of a machine word. Every HeapObject
// starts on a WordSize boundary.
const WordSize = 8

// Addr is a byte address into one of the heap's spaces. It is never
// dereferenced directly by collector code; it only ever indexes into a
// Space's backing buffer.
type Addr uintptr

// Add returns a+n.
func (a Addr) Add(n int64) Addr {
	return Addr(int64(a) + n)
}

// Sub returns a-b, the distance in bytes from b to a.
func (a Addr) Sub(b Addr) int64 {
	return int64(a) - int64(b)
}

// AlignUp rounds a up to the next multiple of n, which must be a power of two.
func (a Addr) AlignUp(n int64) Addr {
	m := Addr(n - 1)
	return (a + m) &^ m
}

// AlignDown rounds a down to the previous multiple of n, which must be a
// power of two.
func (a Addr) AlignDown(n int64) Addr {
	return a &^ Addr(n-1)
}

// WordAligned reports whether a falls on a machine-word boundary.
func (a Addr) WordAligned() bool {
	return a%WordSize == 0
}

func (a Addr) String() string {
	return fmt.Sprintf("0x%x", uintptr(a))
}

// Range is a half-open byte range [Lo, Hi).
type Range struct {
	Lo, Hi Addr
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.Hi.Sub(r.Lo)
}

// Contains reports whether a lies in [Lo, Hi).
func (r Range) Contains(a Addr) bool {
	return a >= r.Lo && a < r.Hi
}
