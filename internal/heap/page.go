package heap

import (
	"sort"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/bitmap"
)

// Page is a fixed-size region of a Space's address range (spec §3). It owns
// the MarkingBitmap covering its object area and the free-list the Sweeper
// produces.
type Page struct {
	Space *Space
	Base  addr.Addr
	Words int64
	Bitmap *bitmap.Bitmap

	FreeList *FreeList

	// SweptConservatively is set by the Sweeper on pages it swept with the
	// conservative strategy, so iterators know to trust the bitmap rather
	// than assume contiguous live objects (spec §4.7).
	SweptConservatively bool

	objects map[addr.Addr]*Object
}

// End returns the address just past the page's object area.
func (p *Page) End() addr.Addr { return p.Base.Add(p.Words * addr.WordSize) }

// Register records a freshly allocated object on this page and sets its
// mark bit (new objects start out implicitly live until the next sweep
// proves otherwise — this mirrors an allocator that always marks its own
// bump-allocated objects black under incremental marking; for the
// stop-the-world collector it simply means "present").
func (p *Page) Register(o *Object) {
	p.objects[o.Addr] = o
	p.Bitmap.Set(o.Addr)
}

// Lookup returns the object starting exactly at a, if any.
func (p *Page) Lookup(a addr.Addr) (*Object, bool) {
	o, ok := p.objects[a]
	return o, ok
}

// Unregister removes an object's bookkeeping entirely (used once the
// Sweeper has folded its space into the free-list).
func (p *Page) Unregister(a addr.Addr) {
	delete(p.objects, a)
	p.Bitmap.Clear(a)
}

// ForEachObject calls fn for every object ever registered on this page
// (live or not-yet-swept-dead), in address order.
func (p *Page) ForEachObject(fn func(*Object) bool) bool {
	for _, a := range p.sortedObjectAddrs() {
		if !fn(p.objects[a]) {
			return false
		}
	}
	return true
}

// ForEachLiveObject calls fn for every object on this page whose mark bit is
// currently set, in address order.
func (p *Page) ForEachLiveObject(fn func(*Object) bool) bool {
	for _, a := range p.sortedObjectAddrs() {
		if p.Bitmap.Get(a) {
			if !fn(p.objects[a]) {
				return false
			}
		}
	}
	return true
}

func (p *Page) sortedObjectAddrs() []addr.Addr {
	out := make([]addr.Addr, 0, len(p.objects))
	for a := range p.objects {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// freeRange is a half-open [Lo, Hi) span of unallocated page bytes.
type freeRange struct {
	lo, hi addr.Addr
}

// Free-list encodings a post-sweep object-by-object iterator must recognize
// and skip (spec §4.7). This module tracks free spans structurally (as
// freeRange values) rather than by writing sentinel words into simulated
// memory, but the two encodings are named here so the Sweeper and any
// iterator built on top of it speak the same vocabulary as the spec.
const (
	SingleFreeEncoding = 1 // one-word free block: no length word follows
	MultiFreeEncoding  = 2 // free block with an explicit trailing length word
)

// FreeList tracks a page's unallocated byte ranges and satisfies allocation
// requests first-fit. It is the Sweeper's sole write interface onto space
// bookkeeping (spec §4.7: "Free-list policy is opaque to the Sweeper").
type FreeList struct {
	page  *Page
	spans []freeRange // sorted, non-overlapping, non-adjacent
}

func newFreeList(p *Page) *FreeList {
	return &FreeList{page: p, spans: []freeRange{{lo: p.Base, hi: p.End()}}}
}

// Allocate carves `words` words off the first sufficiently large free span
// and returns its start address.
func (f *FreeList) Allocate(words int64) (addr.Addr, bool) {
	need := words * addr.WordSize
	for i, s := range f.spans {
		if s.hi.Sub(s.lo) >= need {
			start := s.lo
			newLo := s.lo.Add(need)
			if newLo == s.hi {
				f.spans = append(f.spans[:i], f.spans[i+1:]...)
			} else {
				f.spans[i].lo = newLo
			}
			return start, true
		}
	}
	return 0, false
}

// free returns [a, a+words*wordsize) to the free-list, coalescing with
// adjacent spans, and drops any object registration at a. Encoding kind is
// not tracked explicitly (see SingleFreeEncoding/MultiFreeEncoding above);
// this is a bookkeeping-level model, not a byte-accurate one.
func (f *FreeList) free(a addr.Addr, words int64) {
	lo := a
	hi := a.Add(words * addr.WordSize)
	f.page.Unregister(a)

	spans := append(f.spans, freeRange{lo: lo, hi: hi})
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	merged := spans[:0]
	for _, s := range spans {
		if len(merged) > 0 && merged[len(merged)-1].hi >= s.lo {
			if s.hi > merged[len(merged)-1].hi {
				merged[len(merged)-1].hi = s.hi
			}
			continue
		}
		merged = append(merged, s)
	}
	f.spans = merged
}

// Bytes returns the total number of free bytes across all spans.
func (f *FreeList) Bytes() int64 {
	var total int64
	for _, s := range f.spans {
		total += s.hi.Sub(s.lo)
	}
	return total
}

// Spans returns a copy of the current free spans as addr.Range values, for
// inspection by tests and the fragmentation heuristic.
func (f *FreeList) Spans() []addr.Range {
	out := make([]addr.Range, len(f.spans))
	for i, s := range f.spans {
		out[i] = addr.Range{Lo: s.lo, Hi: s.hi}
	}
	return out
}

// Reset discards all free-list state and marks the entire page free again.
// The Sweeper does not use it: it rebuilds a page's free-list with
// FinalizeFromLiveSpans.
func (f *FreeList) Reset() {
	f.spans = []freeRange{{lo: f.page.Base, hi: f.page.End()}}
}

// MarkUsed does nothing: the free-list is left unchanged. Sweepers rebuild
// free-list state with FinalizeFromLiveSpans instead.
func (f *FreeList) MarkUsed(addr.Addr, int64) {
	// Sweepers in this module call FinalizeFromLiveSpans instead, which
	// computes the free-list as the complement of the live spans in one
	// pass; MarkUsed is kept only as a documented extension point for a
	// future incremental free-list rebuild.
}

// FinalizeFromLiveSpans replaces the free-list with the complement, within
// the page, of the given sorted, non-overlapping live spans.
func (f *FreeList) FinalizeFromLiveSpans(live []addr.Range) {
	var spans []freeRange
	cur := f.page.Base
	for _, l := range live {
		if l.Lo > cur {
			spans = append(spans, freeRange{lo: cur, hi: l.Lo})
		}
		cur = l.Hi
	}
	if end := f.page.End(); end > cur {
		spans = append(spans, freeRange{lo: cur, hi: end})
	}
	f.spans = spans
}
