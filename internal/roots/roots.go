// Package roots models the collector's root set: the external pointers
// (globals, stack slots, persistent handles) that seed marking, plus the
// weak roots and object groups that get resolved after the main traversal
// completes (spec §3 "RootSet", §4.4 steps 1 and 6).
//
// The strong/weak split and the notion of naming each root mirror
// golang.org/x/debug/internal/gocore/root.go's Root/rootPiece model, where
// every GC root is a named, typed piece of the live process rather than an
// anonymous address; here a Root is similarly named, but backed by a
// getter closure instead of a byte range, since this collector has no
// memory image to slice.
package roots

import "github.com/markcompact/heapgc/internal/addr"

// Root is a single named source of truth for a reachable address. Get may
// return ok=false if the root is not currently populated (e.g. an empty
// stack slot). Set is optional (nil for read-only roots); the Scavenger
// uses it to rewrite a root's target in place after a copying collection
// (spec §4.8, "iterate all strong roots with the [pointer-]updating
// visitor").
type Root struct {
	Name string
	Get  func() (addr.Addr, bool)
	Set  func(addr.Addr)
}

// WeakRoot is a root visited only after the main mark phase completes; if
// its target did not get marked by the strong roots and ordinary object
// graph, Clear is invoked so the holder can drop its reference (spec §4.4
// step 6, "process weak roots: invoke callbacks for references to
// now-unreachable objects"). Set is optional, same contract as Root.Set;
// it gives the global-contexts list and the external-string table (both
// modeled as weak roots here) a way to participate in the Scavenger's
// nursery pointer fixup pass.
type WeakRoot struct {
	Name  string
	Get   func() (addr.Addr, bool)
	Set   func(addr.Addr)
	Clear func()
}

// ObjectGroup is a set of addresses that must be treated as mutually
// keeping each other alive: if marking independently reaches any member,
// every other member is retained too, even though no in-heap pointer
// connects them (spec §3, modeling V8's embedder-supplied object groups
// for e.g. wrapper/wrapped pairs).
type ObjectGroup struct {
	Members []addr.Addr
}

// RootSet collects strong roots, weak roots and object groups for one
// collector instance.
type RootSet struct {
	strong []Root
	weak   []WeakRoot
	groups []ObjectGroup
}

// AddStrong registers a strong root.
func (r *RootSet) AddStrong(name string, get func() (addr.Addr, bool)) {
	r.strong = append(r.strong, Root{Name: name, Get: get})
}

// AddWeak registers a weak root.
func (r *RootSet) AddWeak(name string, get func() (addr.Addr, bool), clear func()) {
	r.weak = append(r.weak, WeakRoot{Name: name, Get: get, Clear: clear})
}

// AddStrongMutable registers a strong root that the Scavenger may also
// rewrite in place (spec §4.8 pass 2).
func (r *RootSet) AddStrongMutable(name string, get func() (addr.Addr, bool), set func(addr.Addr)) {
	r.strong = append(r.strong, Root{Name: name, Get: get, Set: set})
}

// AddWeakMutable registers a weak root that is both cleared on death and
// rewritable by the Scavenger — the shape of the global-contexts list head
// and the external-string table (spec §4.8).
func (r *RootSet) AddWeakMutable(name string, get func() (addr.Addr, bool), set func(addr.Addr), clear func()) {
	r.weak = append(r.weak, WeakRoot{Name: name, Get: get, Set: set, Clear: clear})
}

// AddGroup registers an object group.
func (r *RootSet) AddGroup(members ...addr.Addr) {
	r.groups = append(r.groups, ObjectGroup{Members: members})
}

// ForEachStrong calls fn with the current target of every strong root that
// currently resolves to an address.
func (r *RootSet) ForEachStrong(fn func(name string, target addr.Addr)) {
	for _, root := range r.strong {
		if a, ok := root.Get(); ok {
			fn(root.Name, a)
		}
	}
}

// ResolveGroups expands any object group containing at least one address
// for which isMarked returns true into all of its members, calling push for
// every member not already marked. This is the fixpoint step: the caller
// is expected to keep calling ResolveGroups (interleaved with draining the
// marking stack) until a pass pushes nothing new, since pushing a member
// can itself mark further objects reachable only through another group.
func (r *RootSet) ResolveGroups(isMarked func(addr.Addr) bool, push func(addr.Addr)) (pushed int) {
	for _, g := range r.groups {
		anyMarked := false
		for _, m := range g.Members {
			if isMarked(m) {
				anyMarked = true
				break
			}
		}
		if !anyMarked {
			continue
		}
		for _, m := range g.Members {
			if !isMarked(m) {
				push(m)
				pushed++
			}
		}
	}
	return pushed
}

// ProcessWeak visits every weak root; if its target does not currently
// resolve or is not marked, Clear is invoked.
func (r *RootSet) ProcessWeak(isMarked func(addr.Addr) bool) {
	for _, w := range r.weak {
		a, ok := w.Get()
		if !ok || !isMarked(a) {
			if w.Clear != nil {
				w.Clear()
			}
		}
	}
}

// ForEachMutableSlot calls fn once for every strong or weak root that both
// currently resolves to an address and carries a non-nil Set, handing back
// that Set so the caller (the Scavenger's pointer-updating visitor, spec
// §4.8) can rewrite the root's target in place.
func (r *RootSet) ForEachMutableSlot(fn func(name string, target addr.Addr, set func(addr.Addr))) {
	for _, root := range r.strong {
		if root.Set == nil {
			continue
		}
		if a, ok := root.Get(); ok {
			fn(root.Name, a, root.Set)
		}
	}
	for _, w := range r.weak {
		if w.Set == nil {
			continue
		}
		if a, ok := w.Get(); ok {
			fn(w.Name, a, w.Set)
		}
	}
}

// StrongCount and WeakCount report how many roots of each kind are
// registered, used by tests and the CLI's overview report.
func (r *RootSet) StrongCount() int { return len(r.strong) }
func (r *RootSet) WeakCount() int   { return len(r.weak) }
func (r *RootSet) GroupCount() int  { return len(r.groups) }
