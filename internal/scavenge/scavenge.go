// Package scavenge implements the Scavenger: the nursery's two-space copy
// and promotion pass that runs once per old-generation cycle, after the
// old-space Sweeper and before map-space sweep (spec §4.8, §5 ordering).
//
// No file in the retrieved pack performs a real copying/promoting
// collection — golang.org/x/debug/internal/gocore only ever reads an
// immutable post-mortem heap, so nothing in it moves an object or rewrites
// a pointer. This package is built directly from spec §4.8, reusing this
// module's own internal/heap allocation contract (AllocateOld/Nursery.Flip,
// themselves grounded on the teacher's Space model) and heap.Object's
// Forwarded/ForwardAddr fields. See DESIGN.md.
package scavenge

import (
	"sort"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/roots"
	"github.com/markcompact/heapgc/internal/storebuffer"
)

// zapSentinel is written into a slot whose referent did not survive (spec
// §4.8 pass 2: "zaps the slot with a sentinel so that a future
// over-approximate scan won't follow it").
const zapSentinel addr.Addr = 0

// Finalizer is called for each nursery object that did not survive, giving
// the embedder a chance to release any external resource it owned (spec
// §4.8 pass 1, "run any per-object finalization callback").
type Finalizer func(o *heap.Object)

// Scavenger runs one nursery collection.
type Scavenger struct {
	Heap  *heap.Heap
	Store *storebuffer.Buffer
	Roots *roots.RootSet

	// Finalize is invoked for every dead nursery object, if set.
	Finalize Finalizer

	Promoted  int
	Survivors int
}

// New returns a Scavenger over h, replaying sb and fixing up rs.
func New(h *heap.Heap, sb *storebuffer.Buffer, rs *roots.RootSet) *Scavenger {
	return &Scavenger{Heap: h, Store: sb, Roots: rs}
}

// Scavenge runs pass 1 (migrate) and pass 2 (fix up pointers into the
// nursery), then flips the semispaces so the survivors' semispace becomes
// the mutator's new allocation target (spec §4.8).
func (sv *Scavenger) Scavenge() {
	sv.Promoted = 0
	sv.Survivors = 0

	from := sv.Heap.Nursery.Active()
	to := sv.Heap.Nursery.Idle()

	sv.migrate(from, to)
	sv.fixup(from, to)

	sv.Heap.Nursery.Flip()
	sv.Heap.Nursery.BumpAgeMark(sv.Survivors)
}

// migrate is pass 1: scan `from` once, promoting marked objects into old
// space (falling back to copying into `to` on promotion failure) and
// writing a forwarding address into each survivor's Object.ForwardAddr;
// unmarked objects are finalized and left unforwarded.
func (sv *Scavenger) migrate(from, to *heap.Semispace) {
	for _, a := range sortedSemispaceAddrs(from) {
		o, _ := from.Lookup(a)
		if !from.Bitmap.Get(a) {
			if sv.Finalize != nil {
				sv.Finalize(o)
			}
			o.Forwarded = false
			o.ForwardAddr = 0
			continue
		}
		from.Bitmap.Clear(a)
		sv.Survivors++

		if no, ok := sv.promote(o); ok {
			sv.Promoted++
			o.Forwarded = true
			o.ForwardAddr = no.Addr
			continue
		}

		// Old-space allocation failed: copy within the nursery instead.
		// Guaranteed to fit since both semispaces are the same size and
		// `to` started this cycle empty.
		na, ok := to.AllocateRaw(o.Words)
		if !ok {
			panic("scavenge: to-semispace allocation failed despite equal semispace sizing")
		}
		no := &heap.Object{Addr: na, Words: o.Words, Map: o.Map, Slots: append([]addr.Addr(nil), o.Slots...)}
		to.Register(no)
		to.Bitmap.Set(na)
		o.Forwarded = true
		o.ForwardAddr = na
	}
}

// promote attempts to copy o into old space, choosing OldPointer or OldData
// by whether o carries outgoing reference slots (spec §4.8, "chosen by
// layout class"). On success the copy's slots are o's slots unchanged; on
// promotion into OldPointer every slot is entered into the store buffer, so
// pass 2's store-buffer replay rewrites any slot that points into `from`.
func (sv *Scavenger) promote(o *heap.Object) (*heap.Object, bool) {
	kind := heap.OldData
	if o.ContainsPointers() {
		kind = heap.OldPointer
	}
	no, ok := sv.Heap.AllocateOld(kind, o.Words, o.Map)
	if !ok {
		return nil, false
	}
	no.Slots = append([]addr.Addr(nil), o.Slots...)
	no.IsConsString = o.IsConsString
	no.ConsFirst, no.ConsSecond = o.ConsFirst, o.ConsSecond
	if kind == heap.OldPointer {
		for i := range no.Slots {
			sv.Store.EnterDirectlyIntoStoreBuffer(no, i)
		}
	}
	return no, true
}

// fixup is pass 2: rewrite every pointer that still points into `from`,
// now that every survivor's forwarding address is known.
func (sv *Scavenger) fixup(from, to *heap.Semispace) {
	updateSlots := func(slots []addr.Addr) {
		for i, s := range slots {
			if !from.Contains(s) {
				continue
			}
			slots[i] = forwardedOrZap(from, s)
		}
	}

	to.ForEachObject(func(o *heap.Object) { updateSlots(o.Slots) })

	sv.Roots.ForEachMutableSlot(func(_ string, target addr.Addr, set func(addr.Addr)) {
		if !from.Contains(target) {
			return
		}
		set(forwardedOrZap(from, target))
	})

	sv.replayStoreBuffer(from)

	sv.Heap.Space(heap.Cell).ForEachObject(func(o *heap.Object) bool {
		updateSlots(o.Slots)
		return true
	})
}

// replayStoreBuffer drives UpdatePointerToNewGen over every recorded
// old→nursery slot: a non-dead source gets its slot rewritten to the
// forwarded address (re-entering the slot into the rebuilt buffer if that
// address is itself still in the nursery); a dead source gets the slot
// zapped (spec §4.8).
func (sv *Scavenger) replayStoreBuffer(from *heap.Semispace) {
	rebuild := sv.Store.BeginRebuild()
	sv.Store.IteratePointersToNewSpace(func(s storebuffer.Slot) {
		if s.Index < 0 || s.Index >= len(s.Holder.Slots) {
			return
		}
		target := s.Holder.Slots[s.Index]
		if !from.Contains(target) {
			return
		}
		o, ok := from.Lookup(target)
		if !ok || !o.Forwarded {
			s.Holder.Slots[s.Index] = zapSentinel
			return
		}
		s.Holder.Slots[s.Index] = o.ForwardAddr
		if sv.Heap.InNursery(o.ForwardAddr) {
			rebuild.Keep(s)
		}
	})
	rebuild.Commit()
}

func forwardedOrZap(from *heap.Semispace, target addr.Addr) addr.Addr {
	o, ok := from.Lookup(target)
	if !ok || !o.Forwarded {
		return zapSentinel
	}
	return o.ForwardAddr
}

func sortedSemispaceAddrs(s *heap.Semispace) []addr.Addr {
	var out []addr.Addr
	s.ForEachObject(func(o *heap.Object) { out = append(out, o.Addr) })
	// Insertion order from a map range is unspecified; sort so migration
	// is deterministic and tests can rely on a fixed scan order.
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
