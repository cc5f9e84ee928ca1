package heap

import (
	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/bitmap"
)

// Semispace is one half of the nursery's copying area: a contiguous,
// bump-allocated region with no free-list (spec §4.8, "New space is a
// two-space copying collector").
type Semispace struct {
	Base  addr.Addr
	Words int64
	top   int64 // bump pointer offset, in words, from Base

	// Bitmap lets the Marker set mark bits on nursery objects the same way
	// it does for paged old spaces, so a single Marker implementation works
	// over both (spec §4.4 marks the whole heap, not just old space).
	Bitmap *bitmap.Bitmap

	objects map[addr.Addr]*Object
}

func newSemispace(base addr.Addr, words int64) *Semispace {
	return &Semispace{
		Base:    base,
		Words:   words,
		Bitmap:  bitmap.New(base, words),
		objects: make(map[addr.Addr]*Object),
	}
}

// End returns the address just past this semispace.
func (s *Semispace) End() addr.Addr { return s.Base.Add(s.Words * addr.WordSize) }

// AllocateRaw bump-allocates `words` words, or fails if the semispace is
// full.
func (s *Semispace) AllocateRaw(words int64) (addr.Addr, bool) {
	if s.top+words > s.Words {
		return 0, false
	}
	a := s.Base.Add(s.top * addr.WordSize)
	s.top += words
	return a, true
}

// Register records an object placed by AllocateRaw.
func (s *Semispace) Register(o *Object) {
	s.objects[o.Addr] = o
}

// Lookup returns the object starting exactly at a, if any.
func (s *Semispace) Lookup(a addr.Addr) (*Object, bool) {
	o, ok := s.objects[a]
	return o, ok
}

// UsedWords reports how many words have been bump-allocated so far.
func (s *Semispace) UsedWords() int64 { return s.top }

// Contains reports whether a falls within this semispace's extent.
func (s *Semispace) Contains(a addr.Addr) bool {
	return a >= s.Base && a < s.End()
}

// ForEachObject calls fn for every object currently registered, in
// insertion (== address) order is not guaranteed here since scavenging
// mutates the map; callers that need deterministic order should collect
// and sort.
func (s *Semispace) ForEachObject(fn func(*Object)) {
	for _, o := range s.objects {
		fn(o)
	}
}

// Reset clears the bump pointer and object index, leaving the semispace
// ready to serve as either the new allocation target or the idle scratch
// region (spec §4.8 "Flip").
func (s *Semispace) Reset() {
	s.top = 0
	s.objects = make(map[addr.Addr]*Object)
	s.Bitmap.ClearRange(s.Base, s.Words)
}

// Nursery is the young generation: two semispaces of equal size, one
// "active" (the mutator's current bump-allocation target and, during
// marking, the scanned root of the young generation) and one "idle" (last
// cycle's active semispace, now reused as scratch space — specifically as
// the backing store for the MarkingStack, per spec §4.2: "backed by the
// nursery's currently idle semispace").
//
// At the start of a Scavenge, the roles are reinterpreted rather than
// physically swapped first: Active becomes the scavenge's "from" space
// (the generation being evacuated) and Idle becomes "to" (the copy
// destination); Flip then exchanges which underlying Semispace each role
// name points at and resets the new Idle for next cycle.
type Nursery struct {
	a, b     *Semispace
	activeIsA bool

	// AgeMark is the active semispace's bump-allocation top as of the last
	// scavenge, and SurvivorCount the cumulative number of objects that
	// have survived at least one scavenge (spec §4.8, "bump the nursery's
	// age mark to the new allocation top and increment the survivor
	// counter").
	AgeMark       int64
	SurvivorCount int
}

// NewNursery constructs a nursery with two semispaces of `wordsEach` words,
// placed back to back starting at base.
func NewNursery(base addr.Addr, wordsEach int64) *Nursery {
	return &Nursery{
		a:         newSemispace(base, wordsEach),
		b:         newSemispace(base.Add(wordsEach*addr.WordSize), wordsEach),
		activeIsA: true,
	}
}

// Active returns the semispace the mutator currently allocates into.
func (n *Nursery) Active() *Semispace {
	if n.activeIsA {
		return n.a
	}
	return n.b
}

// Idle returns the semispace not currently receiving allocations: during
// Marking this backs the MarkingStack; during Scavenging this is the "to"
// space objects get promoted/copied into.
func (n *Nursery) Idle() *Semispace {
	if n.activeIsA {
		return n.b
	}
	return n.a
}

// Flip exchanges Active and Idle and resets the new Idle, completing a
// scavenge cycle (spec §4.8 step "Flip semispaces").
func (n *Nursery) Flip() {
	n.activeIsA = !n.activeIsA
	n.Idle().Reset()
}

// InNursery reports whether address a lies in either semispace.
func (n *Nursery) InNursery(a addr.Addr) bool {
	return n.a.Contains(a) || n.b.Contains(a)
}

// AllocateRaw bump-allocates into the active semispace.
func (n *Nursery) AllocateRaw(words int64) (addr.Addr, bool) {
	return n.Active().AllocateRaw(words)
}

// BumpAgeMark records the active semispace's current allocation top as the
// new age mark and adds survived to the running survivor count.
func (n *Nursery) BumpAgeMark(survived int) {
	n.AgeMark = n.Active().UsedWords()
	n.SurvivorCount += survived
}
