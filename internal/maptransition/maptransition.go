// Package maptransition implements the MapTransitionCleaner: after a mark
// phase, any hidden-class (Map) transition whose target map did not get
// marked is pruned from its parent's transition table, so dead shapes
// don't pin their whole lineage alive forever (spec §4.6).
//
// Spec §9's design notes call out "pointer-reversal" as the technique
// worth preserving from the original tree-walk. This package deliberately
// does NOT literally repurpose Map.BackPointer as a mutated return-address
// field the way an unmanaged implementation would: doing that across a
// tree that other goroutines might be reading concurrently (or that a
// panicking walk could leave half-reversed) is exactly the kind of raw
// pointer trick Go idiom avoids. Instead the traversal carries its own
// explicit stack, and BackPointer is only ever read, never repointed
// mid-walk — the traversal-without-recursion property the original
// technique existed for is kept; the unsafe aliasing is not.
package maptransition

import "github.com/markcompact/heapgc/internal/heap"

// CreateBackPointers walks every transition reachable from root and makes
// sure each child's BackPointer/AddedProperty are set, for maps that were
// constructed by writing directly into Transitions rather than through
// Map.Transition. This is idempotent: maps built via Map.Transition already
// satisfy the invariant and are left untouched.
func CreateBackPointers(root *heap.Map) {
	type frame struct {
		m    *heap.Map
		keys []string
		idx  int
	}
	keysOf := func(m *heap.Map) []string {
		ks := make([]string, 0, len(m.Transitions))
		for k := range m.Transitions {
			ks = append(ks, k)
		}
		return ks
	}
	stack := []frame{{m: root, keys: keysOf(root)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.idx >= len(top.keys) {
			stack = stack[:len(stack)-1]
			continue
		}
		prop := top.keys[top.idx]
		top.idx++
		child := top.m.Transitions[prop]
		if child.BackPointer == nil {
			child.BackPointer = top.m
			child.AddedProperty = prop
		}
		stack = append(stack, frame{m: child, keys: keysOf(child)})
	}
}

// ClearNonLiveTransitions walks every transition reachable from root and
// removes, from its parent's Transitions table, any child map that
// isMarked reports as unreachable. A pruned child's entire subtree goes
// with it (nothing can reach those maps except through the pruned edge),
// and its maps are flagged Dead so a concurrent observer (e.g. the CLI)
// can tell a stale *Map apart from a live one. Returns the number of map
// objects pruned.
func ClearNonLiveTransitions(root *heap.Map, isMarked func(*heap.Map) bool) int {
	pruned := 0
	stack := []*heap.Map{root}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for prop, child := range m.Transitions {
			if !isMarked(child) {
				delete(m.Transitions, prop)
				pruned += markDeadSubtree(child)
				continue
			}
			stack = append(stack, child)
		}
	}
	return pruned
}

// markDeadSubtree flags every map in a pruned subtree as Dead and reports
// how many maps it touched. It uses an explicit stack rather than
// recursion since a pruned subtree's depth is attacker-influenced (an
// adversarial transition chain) in the same way the Marker's own object
// graph is.
func markDeadSubtree(root *heap.Map) int {
	count := 0
	stack := []*heap.Map{root}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if m.Dead {
			continue
		}
		m.Dead = true
		count++
		for _, child := range m.Transitions {
			stack = append(stack, child)
		}
	}
	return count
}

// ReattachInObjectSlack folds a map's now-unused in-object property slots
// back into the object's free space once no live transition depends on
// the original (wider) layout. This mirrors V8's slack-tracking
// reconciliation: when an object is constructed, it is given room to grow
// for a few more in-object properties than it ends up needing. Once the
// final (most-derived) map in a transition family is live and stable, the
// reserved-but-unused slots in every ancestor map in that family can be
// reclaimed.
func ReattachInObjectSlack(ancestor, final *heap.Map) {
	if final.InObjectProperties < ancestor.InObjectProperties {
		ancestor.InObjectProperties = final.InObjectProperties
	}
}
