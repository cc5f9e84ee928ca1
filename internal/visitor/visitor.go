// Package visitor implements the ObjectVisitor dispatch table (spec §4.3):
// a small enum of VisitorIDs, one per distinct object layout, each mapped
// to a VisitFunc that knows how to enumerate that layout's outgoing
// pointer slots. The Marker and Scavenger both drive objects through this
// table rather than switching on object kind themselves.
//
// The dispatch shape is grounded on the Kind-switch traversal in
// golang.org/x/debug/internal/gocore/object.go's edges1 (one case per Kind,
// each yielding an edge iterator) and internal/gocore/root.go's
// walkRootTypePtrs. Where the teacher switches on a type.Kind at call time,
// this package precomputes a table indexed by VisitorID so the switch is
// paid once, at Map-creation time, rather than on every visited object —
// closer to how the original collector resolves a visitor function pointer
// once per Map and reuses it for every instance.
package visitor

import "github.com/markcompact/heapgc/internal/heap"

// VisitorID names one entry in the dispatch table. These are the concrete
// values stored in heap.Map.VisitorID; package heap itself never interprets
// them, avoiding an import cycle (heap does not import visitor).
const (
	IDDataOnly uint8 = iota // no outgoing pointers (numbers, raw strings)
	IDJSObject              // ordinary tagged-slot object: visit every slot
	IDFixedArray
	IDString
	IDConsString // string concatenation node: two children, shortcut-eligible
	IDMap        // a Map object itself: visit its back pointer and transitions
	IDSharedFunctionInfo
	IDJSFunction
	IDCode
	IDGlobalPropertyCell
	numVisitorIDs
)

// VisitFunc enumerates o's outgoing pointers by calling push for each
// live reference it finds.
type VisitFunc func(h *heap.Heap, o *heap.Object, push func(s *heap.Object))

// Table is a complete dispatch table, one VisitFunc per VisitorID. Two
// variants exist (spec §4.3): the default table follows a
// SharedFunctionInfo/JSFunction's AttachedCode like any other slot, and the
// flush-code table does not, so a Code object can legitimately stay white
// during a cycle that's considering it for flushing (spec §4.5's "Code
// object is currently unmarked" eligibility check depends on this).
type Table [numVisitorIDs]VisitFunc

var table Table

func init() {
	table = NewTable(false)
}

// NewTable builds a dispatch table. When flushCode is true, the
// SharedFunctionInfo and JSFunction entries stop at their own slots and
// stop following AttachedCode; every other entry is unaffected.
func NewTable(flushCode bool) Table {
	var t Table
	t[IDDataOnly] = visitDataOnly
	t[IDJSObject] = visitSlots
	t[IDFixedArray] = visitSlots
	t[IDString] = visitDataOnly
	t[IDConsString] = visitConsString
	t[IDMap] = visitMap
	t[IDCode] = visitDataOnly
	t[IDGlobalPropertyCell] = visitSlots
	if flushCode {
		t[IDSharedFunctionInfo] = visitSharedFunctionInfoNoCode
		t[IDJSFunction] = visitJSFunctionNoCode
	} else {
		t[IDSharedFunctionInfo] = visitSharedFunctionInfo
		t[IDJSFunction] = visitJSFunction
	}
	return t
}

// Dispatch looks up and invokes t's VisitFunc for o, resolving its visitor
// id from o.Map (or using IDMap directly when o wraps a heap.Map).
func (t Table) Dispatch(h *heap.Heap, o *heap.Object, push func(s *heap.Object)) {
	id := IDDataOnly
	switch {
	case o.AsMap != nil:
		id = IDMap
	case o.Map != nil:
		id = o.Map.VisitorID
	}
	fn := t[id]
	if fn == nil {
		fn = visitDataOnly
	}
	fn(h, o, push)
}

// Dispatch invokes the default (code-following) table for o. Callers that
// need the flush-code variant build their own Table via NewTable and call
// its Dispatch method instead.
func Dispatch(h *heap.Heap, o *heap.Object, push func(s *heap.Object)) {
	table.Dispatch(h, o, push)
}

func visitDataOnly(*heap.Heap, *heap.Object, func(*heap.Object)) {}

// visitSlots follows every slot address in o.Slots that currently resolves
// to a registered object, marked or not, and then o's Map object when that
// Map has been placed in map space (non-zero Addr).
func visitSlots(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	for _, s := range o.Slots {
		if target, ok := h.Resolve(s); ok {
			push(target)
		}
	}
	if o.Map != nil && o.Map.Addr != 0 {
		if mo, ok := h.Resolve(o.Map.Addr); ok {
			push(mo)
		}
	}
}

// visitConsString implements the ConsString shortcut (spec §4.3, §9): when
// the node's ConsFlattened is set and resolves, the visitor pushes that
// flattened result instead of the two children, but ONLY when the node is
// not in the nursery; otherwise it pushes ConsFirst and ConsSecond. The
// node's slots are never rewritten, and whether the second child is an
// empty string is not examined. The nursery restriction exists because dirtying a
// store-buffer-tracked old-to-new pointer on a page that is about to be
// swept conservatively would let the Sweeper see a stale slot. This
// stricter nursery check is the one behavior spec §9 calls out as mandatory
// to preserve rather than simplify away.
func visitConsString(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	if o.ConsFlattened != 0 && !h.InNursery(o.Addr) {
		if target, ok := h.Resolve(o.ConsFlattened); ok {
			push(target)
			return
		}
	}
	if first, ok := h.Resolve(o.ConsFirst); ok {
		push(first)
	}
	if second, ok := h.Resolve(o.ConsSecond); ok {
		push(second)
	}
}

// visitMap visits a Map object's back pointer and every live transition
// child, per spec §4.6's description of the transition tree as a graph the
// marker must traverse like any other object graph.
func visitMap(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	m := o.AsMap
	if m == nil {
		return
	}
	if m.BackPointer != nil && m.BackPointer.Addr != 0 {
		if bp, ok := h.Resolve(m.BackPointer.Addr); ok {
			push(bp)
		}
	}
	for _, child := range m.Transitions {
		if child.Addr == 0 {
			continue
		}
		if co, ok := h.Resolve(child.Addr); ok {
			push(co)
		}
	}
	visitSlots(h, o, push)
}

// visitSharedFunctionInfo visits a SharedFunctionInfo's attached Code
// object in addition to its ordinary slots, so the marker keeps Code alive
// for as long as its SharedFunctionInfo is reachable. Used by the default
// table; the flush-code table uses visitSharedFunctionInfoNoCode instead so
// the CodeFlusher can tell flush-eligible Code apart from Code kept alive
// only by this edge (spec §4.5).
func visitSharedFunctionInfo(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	visitSlots(h, o, push)
	if o.AttachedCode != nil {
		push(o.AttachedCode)
	}
}

// visitSharedFunctionInfoNoCode is visitSharedFunctionInfo without the
// AttachedCode edge (spec §4.3's flush-code table variant).
func visitSharedFunctionInfoNoCode(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	visitSlots(h, o, push)
}

// visitJSFunction visits a JSFunction's SharedFunctionInfo and its own
// (possibly optimized) attached Code. Used by the default table; see
// visitJSFunctionNoCode for the flush-code variant.
func visitJSFunction(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	visitSlots(h, o, push)
	if o.SharedFunctionInfo != nil {
		push(o.SharedFunctionInfo)
	}
	if o.AttachedCode != nil {
		push(o.AttachedCode)
	}
}

// visitJSFunctionNoCode is visitJSFunction without the AttachedCode edge
// (spec §4.3's flush-code table variant): the SharedFunctionInfo edge is
// kept, since code flushing concerns the Code object, not the function's
// descriptor.
func visitJSFunctionNoCode(h *heap.Heap, o *heap.Object, push func(*heap.Object)) {
	visitSlots(h, o, push)
	if o.SharedFunctionInfo != nil {
		push(o.SharedFunctionInfo)
	}
}
