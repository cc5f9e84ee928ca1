// Package mark implements the Marker: the stop-the-world tracing pass that
// computes heap-wide liveness by driving every reachable object through
// the ObjectVisitor dispatch table (spec §4.4).
//
// The overflow-recovery walk is grounded on the order-independent
// reachability loop in golang.org/x/debug/internal/gocore/object.go's
// markObjects, which keeps popping its worklist until empty; this package
// adds the bounded stack and a second-level recovery walk (spec §4.4 step
// 7) for when that worklist is a fixed-capacity markstack.Stack instead of
// an unbounded slice. The recovery walk itself is scoped by a per-object
// overflow bit (bitmap.Bitmap's third plane) rather than a blanket rescan of
// every marked object, so a dropped push costs one extra revisit instead of
// one extra pass over the whole live set.
package mark

import (
	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/markstack"
	"github.com/markcompact/heapgc/internal/roots"
	"github.com/markcompact/heapgc/internal/visitor"
)

// Marker runs one full mark phase over a Heap.
type Marker struct {
	Heap  *heap.Heap
	Roots *roots.RootSet
	Stack *markstack.Stack

	// FlushCode selects the no-code-push visitor table variant for this
	// cycle (spec §4.3): while true, visiting a SharedFunctionInfo or
	// JSFunction no longer follows AttachedCode, so a Code object stays
	// white unless something else roots it directly — the precondition the
	// CodeFlusher's "Code object currently unmarked" eligibility check
	// depends on (spec §4.5). Left false, marking behaves exactly as before
	// this field was added.
	FlushCode bool

	// Stats, filled in by MarkLiveObjects.
	ObjectsMarked  int
	OverflowPasses int
	Traversals     int // number of times drain() dispatched a (possibly repeat) object

	table visitor.Table
}

// New returns a Marker whose stack is backed by the nursery's currently
// idle semispace (spec §4.2).
func New(h *heap.Heap, rs *roots.RootSet) *Marker {
	m := &Marker{Heap: h, Roots: rs, Stack: markstack.New(0)}
	idle := h.Nursery.Idle()
	m.Stack.Init(idle.Base, idle.End())
	return m
}

func (m *Marker) isMarked(a addr.Addr) bool {
	bm, ok := m.Heap.BitmapFor(a)
	return ok && bm.Get(a)
}

// markWhite sets a's mark bit if clear and reports whether it changed
// (i.e. the object was white and is now black/grey).
func (m *Marker) markWhite(a addr.Addr) bool {
	bm, ok := m.Heap.BitmapFor(a)
	if !ok {
		return false
	}
	if bm.Get(a) {
		return false
	}
	bm.Set(a)
	return true
}

func (m *Marker) push(o *heap.Object) {
	if !m.markWhite(o.Addr) {
		return
	}
	m.ObjectsMarked++
	if !m.Stack.Push(o.Addr) {
		// The stack is full: flag o's per-object overflow bit so
		// recoverOverflow() re-pushes exactly this object, and only this
		// object, once the stack drains (spec §4.4 step 7).
		m.setOverflow(o.Addr)
	}
}

func (m *Marker) getOverflow(a addr.Addr) bool {
	bm, ok := m.Heap.BitmapFor(a)
	return ok && bm.GetOverflow(a)
}

func (m *Marker) setOverflow(a addr.Addr) {
	if bm, ok := m.Heap.BitmapFor(a); ok {
		bm.SetOverflow(a)
	}
}

func (m *Marker) clearOverflow(a addr.Addr) {
	if bm, ok := m.Heap.BitmapFor(a); ok {
		bm.ClearOverflow(a)
	}
}

// MarkLiveObjects runs the full sequence (spec §4.4):
//
//  1. Clear every mark bitmap (old spaces and both nursery semispaces).
//  2. Re-initialize the marking stack against the nursery's idle semispace.
//  3. Push every strong root, marking its target.
//  4. Drain the stack: pop an address, dispatch its visitor, push every
//     white child it references.
//  5. If the stack overflowed while draining, run overflow recovery: walk
//     every space in heap.SpaceOrder order looking for marked-but-not-yet-
//     redrained objects and re-push them, then drain again. Repeat until a
//     full recovery pass completes with no overflow.
//  6. Resolve object groups to a fixpoint, interleaved with further
//     draining (and overflow recovery, as in step 5), since pushing a group
//     member can itself need further group resolution.
//  7. Process weak roots, clearing any whose target did not get marked.
//
// The objects-marked / overflow-pass counts are left in ObjectsMarked and
// OverflowPasses for diagnostics.
func (m *Marker) MarkLiveObjects() {
	m.clearAllBitmaps()
	idle := m.Heap.Nursery.Idle()
	m.Stack.Init(idle.Base, idle.End())
	m.ObjectsMarked = 0
	m.OverflowPasses = 0
	m.Traversals = 0
	m.table = visitor.NewTable(m.FlushCode)

	m.Roots.ForEachStrong(func(_ string, a addr.Addr) {
		if o, ok := m.Heap.Resolve(a); ok {
			m.push(o)
		}
	})

	m.drain()

	for m.Stack.Overflowed() {
		m.OverflowPasses++
		m.Stack.ClearOverflow()
		m.recoverOverflow()
		m.drain()
	}

	for {
		pushed := m.Roots.ResolveGroups(m.isMarked, func(a addr.Addr) {
			if o, ok := m.Heap.Resolve(a); ok {
				m.push(o)
			}
		})
		if pushed == 0 {
			break
		}
		m.drain()
		for m.Stack.Overflowed() {
			m.OverflowPasses++
			m.Stack.ClearOverflow()
			m.recoverOverflow()
			m.drain()
		}
	}

	m.Roots.ProcessWeak(m.isMarked)
}

func (m *Marker) drain() {
	for {
		a, ok := m.Stack.Pop()
		if !ok {
			return
		}
		o, ok := m.Heap.Resolve(a)
		if !ok {
			continue
		}
		m.Traversals++
		m.table.Dispatch(m.Heap, o, m.push)
	}
}

// recoverOverflow walks every space in the fixed order spec §4.4 step 7
// names, re-pushing only the objects whose overflow bit is set (they were
// marked before the stack overflowed and dropped rather than pushed, so
// their children may never have been visited) instead of every marked
// object — the per-object overflow bit (spec §9's "(mark_bit,
// overflow_bit)" encoding) is what lets this walk touch just the objects a
// full stack actually dropped rather than rescanning the whole live set.
func (m *Marker) recoverOverflow() {
	recheck := func(a addr.Addr) {
		if !m.isMarked(a) || !m.getOverflow(a) {
			return
		}
		m.clearOverflow(a)
		if !m.Stack.Push(a) {
			m.setOverflow(a)
		}
	}
	semis := []*heap.Semispace{m.Heap.Nursery.Active(), m.Heap.Nursery.Idle()}
	for _, s := range semis {
		s.ForEachObject(func(o *heap.Object) { recheck(o.Addr) })
	}
	for _, k := range heap.SpaceOrder {
		if k == heap.New {
			continue
		}
		m.Heap.Space(k).ForEachObject(func(o *heap.Object) bool {
			recheck(o.Addr)
			return true
		})
	}
}

func (m *Marker) clearAllBitmaps() {
	m.Heap.Nursery.Active().Bitmap.ClearRange(m.Heap.Nursery.Active().Base, m.Heap.Nursery.Active().Words)
	m.Heap.Nursery.Idle().Bitmap.ClearRange(m.Heap.Nursery.Idle().Base, m.Heap.Nursery.Idle().Words)
	for _, k := range heap.SpaceOrder {
		if k == heap.New {
			continue
		}
		m.Heap.Space(k).ForEachPage(func(p *heap.Page) {
			p.Bitmap.ClearRange(p.Base, p.Words)
		})
	}
}

// TransferMark moves a mark bit from an object's old address to its new
// one, so a copy keeps the liveness state the Marker computed for the
// original. Only the mark bit moves; the color and overflow bits are left
// untouched. The Scavenger does not call it: it clears and sets the
// nursery mark bits itself.
func TransferMark(h *heap.Heap, from, to addr.Addr) {
	if bm, ok := h.BitmapFor(from); ok {
		bm.Clear(from)
	}
	if bm, ok := h.BitmapFor(to); ok {
		bm.Set(to)
	}
}
