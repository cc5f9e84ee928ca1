// Package markstack implements the collector's explicit gray-object
// worklist: a bounded LIFO with a sticky overflow flag, backed by the
// nursery's currently idle semispace (spec §4.2).
//
// It replaces the unbounded slice worklist golang.org/x/debug/internal/gocore
// uses for its post-mortem reachability walk (object.go's markObjects
// accumulates `q []Object` with ordinary append/pop) with a fixed-capacity
// array: the teacher's analyzer never needs to bound memory because it
// only ever processes one finished, static snapshot, but a live collector
// must tolerate adversarial fan-out without growing without limit.
package markstack

import "github.com/markcompact/heapgc/internal/addr"

// Stack is a bounded LIFO of gray object addresses.
type Stack struct {
	buf        []addr.Addr
	top        int
	overflowed bool
}

// New returns a Stack with room for `capacity` addresses.
func New(capacity int) *Stack {
	return &Stack{buf: make([]addr.Addr, capacity)}
}

// Init repoints the stack at the address range [lo, hi), sizing capacity to
// the number of machine words it spans — the nursery's idle semispace, per
// spec §4.2. Any prior contents and the overflow flag are discarded.
func (s *Stack) Init(lo, hi addr.Addr) {
	n := int(hi.Sub(lo) / addr.WordSize)
	if n < 0 {
		n = 0
	}
	if cap(s.buf) < n {
		s.buf = make([]addr.Addr, n)
	} else {
		s.buf = s.buf[:n]
	}
	s.top = 0
	s.overflowed = false
}

// Push adds a to the stack. If the stack is already full, the item is not
// stored and the sticky overflow flag is set instead — this is the routine,
// expected case under heavy fan-out, not an error (spec §7).
func (s *Stack) Push(a addr.Addr) bool {
	if s.IsFull() {
		s.overflowed = true
		return false
	}
	s.buf[s.top] = a
	s.top++
	return true
}

// Pop removes and returns the most recently pushed address.
func (s *Stack) Pop() (addr.Addr, bool) {
	if s.IsEmpty() {
		return 0, false
	}
	s.top--
	return s.buf[s.top], true
}

// IsEmpty reports whether the stack holds no addresses.
func (s *Stack) IsEmpty() bool { return s.top == 0 }

// IsFull reports whether the stack has no remaining capacity.
func (s *Stack) IsFull() bool { return s.top >= len(s.buf) }

// Overflowed reports whether a push has been dropped since the last
// ClearOverflow.
func (s *Stack) Overflowed() bool { return s.overflowed }

// ClearOverflow resets the overflow flag, e.g. at the start of another pass
// of the overflow-recovery loop (spec §4.4 step 7).
func (s *Stack) ClearOverflow() { s.overflowed = false }

// Len reports how many addresses are currently on the stack.
func (s *Stack) Len() int { return s.top }

// Cap reports the stack's total capacity in addresses.
func (s *Stack) Cap() int { return len(s.buf) }
