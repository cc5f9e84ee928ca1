// Package sweep implements the Sweeper: after marking, it walks each old
// page and folds every dead span into the page's free-list, using one of
// two strategies per spec §4.7.
//
// Precise sweep decodes every live cell's object starts with
// bitmap.MarkWordToObjectStarts — the same 256-entry-table inner loop
// golang.org/x/debug/internal/gocore/object.go's ForEachObject uses
// (there, via bits.TrailingZeros64 over a read-only post-mortem bitmap; here
// over a read/write one that the sweep itself then clears). Conservative
// sweep reuses the identical cell-granular walk but coalesces gaps no
// larger than one bitmap cell (32 words, exactly spec §4.7's "approximate
// 32 words" threshold) into the surrounding live span instead of freeing
// them, leaving "small holes unreclaimed but unambiguous."
//
// A compacting cycle replaces sweep-in-place with relocation, for the two
// movable spaces only: compactSpace packs every live object into a
// contiguous prefix starting at the space's first page, recording an
// old→new forwarding address per moved object, and rewriteAllPointers then
// walks the whole heap updating every slot that pointed into the moved
// region. This is the Go-model analog of V8's mark-compact.cc
// MigrateObject (the relocation itself) and
// PointersToNewGenUpdatingVisitor (the follow-up pointer-rewrite pass);
// here the relocation moves the *Object in place (Addr and page
// registration) rather than copying into a freshly allocated struct, since
// every in-heap reference to an object is a *heap.Object Go pointer, not an
// address — only the address-typed fields (Slots, the cons-string fields,
// and root targets) need rewriting after a move.
package sweep

import (
	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/bitmap"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/roots"
)

// Result summarizes one page's (or space's) sweep.
type Result struct {
	FreedBytes  int64
	LiveObjects int64
	LiveBytes   int64
}

func (r *Result) add(o Result) {
	r.FreedBytes += o.FreedBytes
	r.LiveObjects += o.LiveObjects
	r.LiveBytes += o.LiveBytes
}

// Sweeper walks a Heap's old-generation pages, producing free-lists.
type Sweeper struct {
	// ConservativeGapWords is the minimum gap size, in words, the
	// conservative strategy will place on the free-list; smaller gaps are
	// left unreclaimed (spec §4.7). Defaults to one bitmap cell.
	ConservativeGapWords int64
}

// New returns a Sweeper with the default conservative-gap threshold.
func New() *Sweeper {
	return &Sweeper{ConservativeGapWords: bitmap.WordsPerCell}
}

// SweepHeap sweeps every old-generation space. When compacting is true, the
// two movable spaces (OldPointer, OldData) are compacted instead of swept
// in place, and every pointer into either space is rewritten to follow the
// moves (spec §4.7's "precise" strategy applies to the rest as before);
// when false, every space sweeps in place, precisely for spaces whose
// SpaceKind.PreciseByDefault is true or when compacting was requested,
// conservatively otherwise. Map space is the caller's responsibility to run
// last (spec §5 ordering); SweepHeap itself only walks what it's given.
func (s *Sweeper) SweepHeap(h *heap.Heap, compacting bool, rs *roots.RootSet) Result {
	var total Result
	if compacting {
		forwarded := make(map[addr.Addr]addr.Addr)
		for _, k := range heap.SpaceOrder {
			if k == heap.New || k == heap.MapSpace {
				continue
			}
			sp := h.Space(k)
			if k.Movable() {
				total.add(s.compactSpace(sp, forwarded))
			} else {
				total.add(s.SweepSpace(sp, true))
			}
		}
		if len(forwarded) > 0 {
			rewriteAllPointers(h, rs, forwarded)
		}
		return total
	}
	for _, k := range heap.SpaceOrder {
		if k == heap.New || k == heap.MapSpace {
			continue
		}
		total.add(s.SweepSpace(h.Space(k), false))
	}
	return total
}

// SweepMapSpace sweeps map space precisely, always — spec §5: "map space is
// always swept last and precisely" because the next cycle's map-transition
// walk depends on a freshly, precisely compacted bitmap.
func (s *Sweeper) SweepMapSpace(h *heap.Heap) Result {
	return s.SweepSpace(h.Space(heap.MapSpace), true)
}

// SweepSpace sweeps every page of sp with the strategy appropriate to its
// kind (or forced precise by alwaysPrecise).
func (s *Sweeper) SweepSpace(sp *heap.Space, alwaysPrecise bool) Result {
	precise := alwaysPrecise || sp.Kind.PreciseByDefault()
	var total Result
	sp.ForEachPage(func(p *heap.Page) {
		if precise {
			total.add(s.sweepPagePrecise(p))
		} else {
			total.add(s.sweepPageConservative(p))
		}
	})
	return total
}

// liveSpan is one surviving object's extent, decoded off the bitmap rather
// than trusted from the object registry alone — the registry supplies the
// size (this model's stand-in for consulting the object's Map/class
// descriptor), the bitmap supplies the fact and location of liveness.
type liveSpan struct {
	addr.Range
}

// decodeLiveSpans walks p's bitmap cell by cell via MarkWordToObjectStarts,
// looks up each decoded start in the page's object registry for its size,
// and returns the live spans in ascending address order. Any dead
// (unmarked) registered object is unregistered as a side effect, since a
// sweep is the one point in the cycle that reclaims it.
func decodeLiveSpans(p *heap.Page) []liveSpan {
	var spans []liveSpan
	var offsets [bitmap.WordsPerCell]int
	cells := p.Bitmap.Cells()
	for c := 0; c < cells; c++ {
		cell := p.Bitmap.Cell(c)
		if cell == 0 {
			continue
		}
		n, err := bitmap.MarkWordToObjectStarts(cell, offsets[:])
		if err != nil {
			panic(err)
		}
		base := bitmap.CellToIndex(c)
		for i := 0; i < n; i++ {
			a := p.Bitmap.AddrOfWord(base + offsets[i])
			o, ok := p.Lookup(a)
			if !ok {
				// A mark bit with no registered object is a liveness
				// bookkeeping error elsewhere in the cycle, not something
				// the sweeper should paper over.
				panic("sweep: marked bit has no registered object")
			}
			spans = append(spans, liveSpan{addr.Range{Lo: a, Hi: a.Add(o.Words * addr.WordSize)}})
		}
	}
	// Objects not in the bitmap at all (dead) are dropped from the
	// registry here; anything still in p's object map but absent from the
	// spans above is garbage.
	for _, a := range deadAddrs(p, spans) {
		p.Unregister(a)
	}
	return spans
}

func deadAddrs(p *heap.Page, live []liveSpan) []addr.Addr {
	liveSet := make(map[addr.Addr]bool, len(live))
	for _, s := range live {
		liveSet[s.Lo] = true
	}
	var dead []addr.Addr
	p.ForEachObject(func(o *heap.Object) bool {
		if !liveSet[o.Addr] {
			dead = append(dead, o.Addr)
		}
		return true
	})
	return dead
}

func liveBytes(spans []liveSpan) int64 {
	var n int64
	for _, s := range spans {
		n += s.Len()
	}
	return n
}

// sweepPagePrecise implements spec §4.7's precise strategy: every live
// object is pinned exactly, every gap between them (and before the first /
// after the last) goes on the free-list whole. The mark bit of each
// consumed cell is cleared as it's processed, establishing the §8 testable
// property that markbits.IsClean() holds after sweep.
func (s *Sweeper) sweepPagePrecise(p *heap.Page) Result {
	spans := decodeLiveSpans(p)
	ranges := make([]addr.Range, len(spans))
	for i, sp := range spans {
		ranges[i] = sp.Range
		p.Bitmap.Clear(sp.Lo)
	}
	before := p.FreeList.Bytes()
	p.FreeList.FinalizeFromLiveSpans(ranges)
	after := p.FreeList.Bytes()
	return Result{FreedBytes: after - before, LiveObjects: int64(len(spans)), LiveBytes: liveBytes(spans)}
}

// sweepPageConservative implements spec §4.7's approximate strategy: live
// spans separated by a gap no larger than ConservativeGapWords are
// coalesced together (the small hole stays off the free-list, unreclaimed
// but still unambiguous since the bitmap, preserved on this page, still
// marks the true object starts within it) and only gaps wider than the
// threshold are freed. The page is flagged SweptConservatively so later
// iterators know not to assume contiguous live objects.
func (s *Sweeper) sweepPageConservative(p *heap.Page) Result {
	spans := decodeLiveSpans(p)
	thresholdBytes := s.ConservativeGapWords * addr.WordSize

	var coalesced []addr.Range
	for _, sp := range spans {
		if len(coalesced) > 0 {
			last := &coalesced[len(coalesced)-1]
			if sp.Lo.Sub(last.Hi) <= thresholdBytes {
				last.Hi = sp.Hi
				continue
			}
		}
		coalesced = append(coalesced, sp.Range)
	}

	before := p.FreeList.Bytes()
	p.FreeList.FinalizeFromLiveSpans(coalesced)
	after := p.FreeList.Bytes()
	p.SweptConservatively = true
	// Bitmap bits for consumed cells are left set deliberately: a
	// conservatively swept page's bitmap remains the authority an object
	// iterator must trust (spec §4.7, "iterators know they must trust the
	// object-start bitmap"), unlike the precise strategy which clears as
	// it goes because the page becomes linearly walkable without it.
	return Result{FreedBytes: after - before, LiveObjects: int64(len(spans)), LiveBytes: liveBytes(spans)}
}

// pendingMove is one live object awaiting relocation, captured before any
// page's free-list is touched so the packing loop below never has to
// re-decode a page mid-pass.
type pendingMove struct {
	obj     *heap.Object
	page    *heap.Page
	oldAddr addr.Addr
}

// compactSpace packs every live object in sp into a contiguous prefix
// starting at sp.Pages[0].Base, walking pages and, within a page, objects
// in ascending address order — so no object is ever relocated past its own
// original position, only pulled earlier to close a gap. Every object that
// actually moves is recorded in forwarded (keyed by its pre-compaction
// address) for rewriteAllPointers to follow up with.
func (s *Sweeper) compactSpace(sp *heap.Space, forwarded map[addr.Addr]addr.Addr) Result {
	var total Result
	if len(sp.Pages) == 0 {
		return total
	}

	var moves []pendingMove
	for _, p := range sp.Pages {
		for _, span := range decodeLiveSpans(p) {
			obj, ok := p.Lookup(span.Lo)
			if !ok {
				panic("sweep: compaction lost a live object between decode and pack")
			}
			moves = append(moves, pendingMove{obj: obj, page: p, oldAddr: span.Lo})
		}
	}

	liveByPage := make([][]addr.Range, len(sp.Pages))
	destIdx := 0
	cur := sp.Pages[0].Base

	for _, mv := range moves {
		need := mv.obj.Words * addr.WordSize
		for cur.Add(need) > sp.Pages[destIdx].End() {
			destIdx++
			if destIdx >= len(sp.Pages) {
				panic("sweep: compaction overran the space's pages")
			}
			cur = sp.Pages[destIdx].Base
		}
		destPage := sp.Pages[destIdx]
		newAddr := cur
		cur = cur.Add(need)

		liveByPage[destIdx] = append(liveByPage[destIdx], addr.Range{Lo: newAddr, Hi: newAddr.Add(need)})
		total.LiveObjects++
		total.LiveBytes += need

		if newAddr == mv.oldAddr {
			mv.page.Bitmap.Clear(mv.oldAddr)
			continue
		}
		forwarded[mv.oldAddr] = newAddr
		mv.page.Unregister(mv.oldAddr)
		mv.obj.Addr = newAddr
		mv.obj.Forwarded = true
		mv.obj.ForwardAddr = newAddr
		destPage.Register(mv.obj)
		destPage.Bitmap.Clear(newAddr)
	}

	for i, p := range sp.Pages {
		before := p.FreeList.Bytes()
		p.FreeList.FinalizeFromLiveSpans(liveByPage[i])
		after := p.FreeList.Bytes()
		total.FreedBytes += after - before
	}
	return total
}

// rewriteAllPointers walks every object in the heap (both nursery
// semispaces and every old-generation space) plus every mutable root,
// replacing any address found in forwarded with its new target — the
// follow-up pass a moving compaction requires, mirroring V8's
// PointersToNewGenUpdatingVisitor.
func rewriteAllPointers(h *heap.Heap, rs *roots.RootSet, forwarded map[addr.Addr]addr.Addr) {
	rewrite := func(a addr.Addr) addr.Addr {
		if to, ok := forwarded[a]; ok {
			return to
		}
		return a
	}
	fixObject := func(o *heap.Object) {
		for i, s := range o.Slots {
			o.Slots[i] = rewrite(s)
		}
		if o.IsConsString {
			o.ConsFirst = rewrite(o.ConsFirst)
			o.ConsSecond = rewrite(o.ConsSecond)
			if o.ConsFlattened != 0 {
				o.ConsFlattened = rewrite(o.ConsFlattened)
			}
		}
	}

	h.Nursery.Active().ForEachObject(fixObject)
	h.Nursery.Idle().ForEachObject(fixObject)
	for _, k := range heap.SpaceOrder {
		if k == heap.New {
			continue
		}
		h.Space(k).ForEachObject(func(o *heap.Object) bool {
			fixObject(o)
			return true
		})
	}

	rs.ForEachMutableSlot(func(_ string, target addr.Addr, set func(addr.Addr)) {
		if to, ok := forwarded[target]; ok {
			set(to)
		}
	})
}
