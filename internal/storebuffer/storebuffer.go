// Package storebuffer implements the mutator-maintained log of old→nursery
// pointer slots the Scavenger replays after every cycle (spec §3
// "StoreBuffer", §4.8 pass 2, §6 "EnterDirectlyIntoStoreBuffer(slot)",
// "IteratePointersToNewSpace(fn)").
//
// A slot is modeled as (Holder, Index) rather than a raw memory address:
// this collector represents an object's outgoing references as
// heap.Object.Slots, a slice of target addresses, not as writable memory
// cells, so "the address of a slot" is naturally the pair identifying which
// object's Nth reference it is. Replaying the buffer then means rewriting
// Holder.Slots[Index] directly instead of dereferencing a raw pointer,
// which is the adaptation this module's non-byte-accurate heap model
// requires of an otherwise address-keyed log (see DESIGN.md).
package storebuffer

import "github.com/markcompact/heapgc/internal/heap"

// Slot identifies one outgoing-reference field of an old-generation object.
type Slot struct {
	Holder *heap.Object
	Index  int
}

// Buffer is an append-only, dedup-on-insert log of slots the mutator has
// recorded an old→nursery pointer write into.
type Buffer struct {
	order []Slot
	seen  map[Slot]bool
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{seen: make(map[Slot]bool)}
}

// EnterDirectlyIntoStoreBuffer records slot, deduplicating repeat writes to
// the same reference field within one mutator epoch.
func (b *Buffer) EnterDirectlyIntoStoreBuffer(holder *heap.Object, index int) {
	s := Slot{Holder: holder, Index: index}
	if b.seen[s] {
		return
	}
	b.seen[s] = true
	b.order = append(b.order, s)
}

// IteratePointersToNewSpace calls fn once for every recorded slot, in
// insertion order.
func (b *Buffer) IteratePointersToNewSpace(fn func(Slot)) {
	for _, s := range b.order {
		fn(s)
	}
}

// Len reports how many distinct slots are currently recorded.
func (b *Buffer) Len() int { return len(b.order) }

// Rebuild is a scoped accumulator for the slots that must survive a replay
// pass: entries the Scavenger re-adds (because their target, though
// forwarded, still lives in the nursery) go here instead of back into b
// directly, so a reader mid-iteration over b never observes the rebuild in
// progress (spec §6, "scoped rebuild").
type Rebuild struct {
	buf  *Buffer
	next *Buffer
}

// BeginRebuild starts a scoped rebuild of b.
func (b *Buffer) BeginRebuild() *Rebuild {
	return &Rebuild{buf: b, next: New()}
}

// Keep re-adds slot to the buffer being rebuilt.
func (r *Rebuild) Keep(s Slot) {
	r.next.EnterDirectlyIntoStoreBuffer(s.Holder, s.Index)
}

// Commit swaps the rebuilt contents into the live buffer, discarding
// whatever was not re-added via Keep during the replay.
func (r *Rebuild) Commit() {
	*r.buf = *r.next
}
