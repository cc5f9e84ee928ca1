// Package codeflush implements the CodeFlusher: after a full mark, any
// SharedFunctionInfo that has gone unexecuted for kCodeAgeThreshold cycles
// has its attached (expensive, optimized or baseline) Code swapped for a
// shared lazy-recompile stub, reclaiming that Code object's space at the
// next sweep (spec §4.5).
//
// The candidate list is threaded directly through the SharedFunctionInfo
// objects themselves (Object.CodeFlushNext) instead of kept in a side
// slice, the same intrusive-linked-list discipline
// _examples/other_examples/.../tinygo runtime/gc_blocks.go uses for its
// scanList of to-be-scanned block headers (objHeader.next): both avoid a
// second allocation just to remember which objects are "on a list."
package codeflush

import "github.com/markcompact/heapgc/internal/heap"

// DefaultCodeAgeThreshold is spec §6's kCodeAgeThreshold: the number of GC
// cycles a SharedFunctionInfo may go unexecuted before its code is
// eligible for flushing.
const DefaultCodeAgeThreshold uint8 = 5

// Flusher owns the code-flushing candidate lists for one Collector: one for
// SharedFunctionInfo objects, one for JSFunction objects (spec §4.5, "a
// code-header padding word for SharedFunctionInfos; the code-entry word for
// JSFunctions").
type Flusher struct {
	CodeAgeThreshold uint8
	LazyCompileStub  *heap.Object

	// Disabled is set while a debugger is attached: flushing an
	// executing function's code out from under a debugger would be
	// visibly wrong (spec §4.5 notes code flushing must be suppressible).
	Disabled bool

	head   *heap.Object // SharedFunctionInfo candidates, threaded via CodeFlushNext
	jsHead *heap.Object // JSFunction candidates, threaded via JSFunctionFlushNext
}

// New returns a Flusher using DefaultCodeAgeThreshold, with flushed
// candidates rebound to stub.
func New(stub *heap.Object) *Flusher {
	return &Flusher{CodeAgeThreshold: DefaultCodeAgeThreshold, LazyCompileStub: stub}
}

// SetDebuggerAttached enables or disables flushing.
func (f *Flusher) SetDebuggerAttached(attached bool) { f.Disabled = attached }

// AddCandidate registers a SharedFunctionInfo for consideration at the next
// ProcessCandidates call. Non-SharedFunctionInfo objects are ignored.
func (f *Flusher) AddCandidate(o *heap.Object) {
	if !o.IsSharedFunctionInfo || o.CodeFlushNext != nil {
		return
	}
	o.CodeFlushNext = f.head
	f.head = o
}

// AddJSFunctionCandidate registers a JSFunction for consideration at the
// next ProcessJSFunctionCandidates call. Non-JSFunction objects are
// ignored.
func (f *Flusher) AddJSFunctionCandidate(o *heap.Object) {
	if !o.IsJSFunction || o.JSFunctionFlushNext != nil {
		return
	}
	o.JSFunctionFlushNext = f.jsHead
	f.jsHead = o
}

// IsFlushable reports whether o's attached code may currently be replaced
// by the lazy-compile stub: the usual CodeAge/AttachedCode gate, plus spec
// §4.5's remaining SharedFunctionInfo predicates ("compiled with source
// available," "not a native/API function," "not a script's top-level
// wrapper," "permits lazy recompilation"), plus the Code object itself
// currently being unmarked — isMarked is the same marked-object predicate
// ProcessCandidates' caller already threads through for o, applied here to
// o.AttachedCode instead (spec §4.3/§4.5: flushing must not sever a Code
// object something else still roots directly).
func (f *Flusher) IsFlushable(o *heap.Object, isMarked func(*heap.Object) bool) bool {
	if f.Disabled || !o.IsSharedFunctionInfo {
		return false
	}
	if o.AttachedCode == nil || o.IsLazyCompileStub {
		return false
	}
	if !o.HasSource || o.IsNative || o.IsTopLevel || !o.AllowsLazyRecompile {
		return false
	}
	if isMarked(o.AttachedCode) {
		return false
	}
	return o.CodeAge >= f.CodeAgeThreshold
}

// IsJSFunctionFlushable reports whether a JSFunction's own code pointer may
// be rebound to the lazy-compile stub: it must run in a valid, non-builtins
// execution context, and its SharedFunctionInfo must already have been
// flushed to the stub this pass — only then has the JSFunction's code
// diverged from what its SharedFunctionInfo now points at (spec §4.5, "JS
// function must point at the same code as its SharedFunctionInfo... and
// have a valid, non-builtins execution context").
func (f *Flusher) IsJSFunctionFlushable(o *heap.Object) bool {
	if f.Disabled || !o.IsJSFunction || o.SharedFunctionInfo == nil {
		return false
	}
	if !o.ValidContext || o.IsBuiltinsContext {
		return false
	}
	return o.SharedFunctionInfo.AttachedCode == f.LazyCompileStub && o.AttachedCode != f.LazyCompileStub
}

// BumpAges increments CodeAge for every still-live candidate that was not
// executed this cycle, and resets to zero any that was (per spec §4.5,
// execution resets the age counter). executed reports, for a given
// SharedFunctionInfo object, whether it ran since the last GC.
func (f *Flusher) BumpAges(isMarked func(*heap.Object) bool, executed func(*heap.Object) bool) {
	for o := f.head; o != nil; o = o.CodeFlushNext {
		if !isMarked(o) {
			continue
		}
		if executed(o) {
			o.CodeAge = 0
			continue
		}
		if o.CodeAge < 255 {
			o.CodeAge++
		}
	}
}

// ProcessCandidates walks the candidate list once: any unmarked
// SharedFunctionInfo is dropped from the list outright (it's dead, the
// Sweeper will reclaim it); any marked, flushable one gets its Code
// swapped for the stub and is dropped from the list (flushing is a
// one-shot transition, not something to reconsider every cycle); anything
// else is kept for next time. Returns how many were flushed this pass.
func (f *Flusher) ProcessCandidates(isMarked func(*heap.Object) bool) int {
	flushed := 0
	var kept *heap.Object
	for o := f.head; o != nil; {
		next := o.CodeFlushNext
		o.CodeFlushNext = nil
		switch {
		case !isMarked(o):
			// dead SharedFunctionInfo: drop, let the sweeper reclaim it.
		case f.IsFlushable(o, isMarked):
			o.AttachedCode = f.LazyCompileStub
			flushed++
		default:
			o.CodeFlushNext = kept
			kept = o
		}
		o = next
	}
	f.head = kept
	return flushed
}

// ProcessJSFunctionCandidates walks the JSFunction candidate list once,
// after ProcessCandidates has had a chance to flush each candidate's
// SharedFunctionInfo: any JSFunction whose SharedFunctionInfo is now
// pointing at the stub follows along (spec §4.5); everything else is kept
// for next cycle the same way ProcessCandidates keeps its own list. Returns
// how many JSFunctions were flushed this pass.
func (f *Flusher) ProcessJSFunctionCandidates(isMarked func(*heap.Object) bool) int {
	flushed := 0
	var kept *heap.Object
	for o := f.jsHead; o != nil; {
		next := o.JSFunctionFlushNext
		o.JSFunctionFlushNext = nil
		switch {
		case !isMarked(o):
			// dead JSFunction: drop, let the sweeper reclaim it.
		case f.IsJSFunctionFlushable(o):
			o.AttachedCode = f.LazyCompileStub
			flushed++
		default:
			o.JSFunctionFlushNext = kept
			kept = o
		}
		o = next
	}
	f.jsHead = kept
	return flushed
}

// Len reports the number of SharedFunctionInfo candidates currently
// tracked, for tests and diagnostics.
func (f *Flusher) Len() int {
	n := 0
	for o := f.head; o != nil; o = o.CodeFlushNext {
		n++
	}
	return n
}

// LenJSFunctions reports the number of JSFunction candidates currently
// tracked, for tests and diagnostics.
func (f *Flusher) LenJSFunctions() int {
	n := 0
	for o := f.jsHead; o != nil; o = o.JSFunctionFlushNext {
		n++
	}
	return n
}
