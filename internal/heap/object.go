package heap

import "github.com/markcompact/heapgc/internal/addr"

// MapFamily distinguishes the broad category of object a Map describes.
// The marker, code flusher and map-transition cleaner each care about a
// different subset of these (spec §4.4/§4.5/§4.6).
type MapFamily int

const (
	JSObjectFamily MapFamily = iota
	JSFunctionFamily
	SharedFunctionInfoFamily
	CodeFamily
	StringFamily
	ConsStringFamily
	FixedArrayFamily
	GlobalPropertyCellFamily
	MapFamilyItself // a Map describing other Maps, i.e. the meta-map
)

func (f MapFamily) String() string {
	switch f {
	case JSObjectFamily:
		return "js-object"
	case JSFunctionFamily:
		return "js-function"
	case SharedFunctionInfoFamily:
		return "shared-function-info"
	case CodeFamily:
		return "code"
	case StringFamily:
		return "string"
	case ConsStringFamily:
		return "cons-string"
	case FixedArrayFamily:
		return "fixed-array"
	case GlobalPropertyCellFamily:
		return "global-property-cell"
	case MapFamilyItself:
		return "map"
	default:
		return "unknown"
	}
}

// Map is the collector's view of a hidden-class / descriptor object: it
// names the instance layout (VisitorID, Family) of the objects that point
// to it, and forms a tree of property transitions used by the
// MapTransitionCleaner (spec §3 "Map-transition chain", §4.6).
//
// VisitorID is deliberately an opaque uint8 here rather than a named
// constant: the dispatch table that interprets it lives in package visitor,
// which imports heap. Keeping the enum there avoids heap importing visitor.
type Map struct {
	Addr   addr.Addr
	Family MapFamily

	VisitorID uint8

	InObjectProperties int
	InstanceWords       int64

	// BackPointer is the parent map this one transitioned from by adding
	// AddedProperty. The root map of a transition tree has a nil
	// BackPointer.
	BackPointer  *Map
	AddedProperty string
	Transitions   map[string]*Map

	// Dead is set by the first ClearNonLiveTransitions pass that finds this
	// map unmarked; the cleaner uses it as the "already visited" flag while
	// walking back-pointers with pointer reversal (spec §4.6, §9).
	Dead bool
}

// NewMap returns a root (no back pointer) Map of the given family.
func NewMap(a addr.Addr, family MapFamily, visitorID uint8) *Map {
	return &Map{Addr: a, Family: family, VisitorID: visitorID, Transitions: make(map[string]*Map)}
}

// Transition returns the child map reached by adding propertyName to m,
// creating it via newChild if it does not already exist. This mirrors
// V8's transition-array lookup/insert used when a JSObject gains a new
// in-object property.
func (m *Map) Transition(propertyName string, newChild func() *Map) *Map {
	if c, ok := m.Transitions[propertyName]; ok {
		return c
	}
	c := newChild()
	c.BackPointer = m
	c.AddedProperty = propertyName
	m.Transitions[propertyName] = c
	return c
}

// Object is a single heap allocation: either an ordinary object governed by
// a Map, or (when Family == MapFamilyItself is not applicable) a Map object
// living in MapSpace. Maps themselves are also represented as Objects when
// placed into a Space/Page so that the marking bitmap and free-list machinery
// is uniform across all spaces (spec §3: "every space, including map space,
// shares the same Page/MarkingBitmap shape").
type Object struct {
	Addr  addr.Addr
	Words int64
	Map   *Map

	// Slots holds this object's outgoing pointer slots, in ascending
	// address order. Non-pointer ("data") objects leave this nil.
	Slots []addr.Addr

	// AsMap is non-nil when this Object's payload is itself a *Map (i.e.
	// this object lives in MapSpace). Ordinary instances leave this nil and
	// use Map above to find their descriptor.
	AsMap *Map

	// --- Code-flushing fields (spec §4.5) ---
	CodeAge              uint8
	IsSharedFunctionInfo bool
	IsJSFunction         bool
	IsLazyCompileStub    bool
	AttachedCode         *Object // SharedFunctionInfo/JSFunction -> Code
	SharedFunctionInfo   *Object // JSFunction -> its SharedFunctionInfo

	// HasSource, IsNative, IsTopLevel and AllowsLazyRecompile are the
	// remaining SharedFunctionInfo eligibility predicates the CodeFlusher
	// checks alongside CodeAge/AttachedCode (spec §4.5): flushing a native
	// builtin, a script's top-level wrapper, or anything that disallows
	// lazy recompilation would leave nothing able to reconstitute the code
	// on next call.
	HasSource           bool
	IsNative            bool
	IsTopLevel          bool
	AllowsLazyRecompile bool

	// ExecutedSinceGC is set by the mutator whenever this
	// SharedFunctionInfo's code ran since the last full mark, and is the
	// signal Flusher.BumpAges consults to decide whether to reset or
	// advance CodeAge (spec §4.5).
	ExecutedSinceGC bool

	// ValidContext and IsBuiltinsContext back the JSFunction-specific
	// flushing predicate: a JSFunction may only be flushed while it runs in
	// a valid, non-builtins execution context (spec §4.5).
	ValidContext      bool
	IsBuiltinsContext bool

	// CodeFlushNext and JSFunctionFlushNext thread this object into the
	// CodeFlusher's two candidate lists directly through object memory
	// rather than a side slice, mirroring the intrusive scanList/
	// objHeader.next pattern found in tinygo's runtime/gc_blocks.go. Only
	// package codeflush reads or writes these fields.
	CodeFlushNext       *Object
	JSFunctionFlushNext *Object

	// --- ConsString fields (spec §4.3, §9) ---
	IsConsString  bool
	ConsFirst     addr.Addr
	ConsSecond    addr.Addr
	ConsFlattened addr.Addr // set once the shortcut has replaced this with its flattened child

	// --- Scavenging fields (spec §4.8) ---
	Forwarded   bool
	ForwardAddr addr.Addr
	Age         int // survivor count, bumped each scavenge the object is promoted-eligible but still young
}

// IsMovable reports whether an object in space k may be relocated by
// compaction: true for OldPointer and OldData, false for every other kind
// (New, Code, Map, Cell, Large).
func (o *Object) IsMovable(k SpaceKind) bool {
	return k.Movable()
}

// ContainsPointers reports whether o has any outgoing reference slots,
// which the Scavenger uses to pick a promotion target: OldPointer for
// objects with slots, OldData for everything else (spec §4.8, "chosen by
// layout class").
func (o *Object) ContainsPointers() bool {
	return len(o.Slots) > 0 || o.IsConsString
}
