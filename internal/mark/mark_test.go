package mark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/roots"
	"github.com/markcompact/heapgc/internal/visitor"
)

func TestMarkLiveObjectsReachesTransitiveChildren(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)

	leaf, _ := h.AllocateOld(heap.OldPointer, 2, m)
	mid, _ := h.AllocateOld(heap.OldPointer, 2, m)
	mid.Slots = []addr.Addr{leaf.Addr}
	root, _ := h.AllocateOld(heap.OldPointer, 2, m)
	root.Slots = []addr.Addr{mid.Addr}
	garbage, _ := h.AllocateOld(heap.OldPointer, 2, m)

	var rs roots.RootSet
	rs.AddStrong("global.root", func() (addr.Addr, bool) { return root.Addr, true })

	marker := New(h, &rs)
	marker.MarkLiveObjects()

	bmRoot, _ := h.BitmapFor(root.Addr)
	bmMid, _ := h.BitmapFor(mid.Addr)
	bmLeaf, _ := h.BitmapFor(leaf.Addr)
	bmGarbage, _ := h.BitmapFor(garbage.Addr)

	assert.True(t, bmRoot.Get(root.Addr))
	assert.True(t, bmMid.Get(mid.Addr))
	assert.True(t, bmLeaf.Get(leaf.Addr))
	assert.False(t, bmGarbage.Get(garbage.Addr), "unreachable object must stay white")
}

func TestMarkLiveObjectsSurvivesStackOverflowViaRecovery(t *testing.T) {
	// Tiny nursery forces a marking-stack capacity of 1 word, well below
	// the fan-out of the tree below, so correctness depends entirely on
	// the overflow-recovery walk (spec §8: capacity 1 still completes).
	h := heap.NewHeap(addr.Addr(0), 1)
	m := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)

	const depth = 5
	nodes := make([]*heap.Object, 0, 1<<depth)
	mk := func() *heap.Object {
		o, ok := h.AllocateOld(heap.OldPointer, 2, m)
		require.True(t, ok)
		nodes = append(nodes, o)
		return o
	}
	var build func(level int) *heap.Object
	build = func(level int) *heap.Object {
		o := mk()
		if level > 0 {
			left := build(level - 1)
			right := build(level - 1)
			o.Slots = []addr.Addr{left.Addr, right.Addr}
		}
		return o
	}
	root := build(depth)

	var rs roots.RootSet
	rs.AddStrong("global.root", func() (addr.Addr, bool) { return root.Addr, true })

	marker := New(h, &rs)
	marker.MarkLiveObjects()

	assert.Greater(t, marker.OverflowPasses, 0, "a 1-word stack marking a deep tree must overflow at least once")
	for _, n := range nodes {
		bm, ok := h.BitmapFor(n.Addr)
		require.True(t, ok)
		assert.True(t, bm.Get(n.Addr), "every node in the reachable tree must end up marked")
	}
	assert.LessOrEqual(t, marker.Traversals, 2*len(nodes),
		"overflow recovery must target only the objects a full stack actually dropped, not rescan the whole live set")
}

func TestMarkLiveObjectsProcessesObjectGroupsToFixpoint(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)

	a, _ := h.AllocateOld(heap.OldPointer, 2, m)
	b, _ := h.AllocateOld(heap.OldPointer, 2, m)

	var rs roots.RootSet
	rs.AddStrong("global.a", func() (addr.Addr, bool) { return a.Addr, true })
	rs.AddGroup(a.Addr, b.Addr)

	marker := New(h, &rs)
	marker.MarkLiveObjects()

	bmB, _ := h.BitmapFor(b.Addr)
	assert.True(t, bmB.Get(b.Addr), "b shares an object group with reachable a, so it must be retained")
}

func TestMarkLiveObjectsClearsWeakRootsToUnreachableTargets(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)
	garbage, _ := h.AllocateOld(heap.OldPointer, 2, m)

	var rs roots.RootSet
	cleared := false
	rs.AddWeak("cache.entry",
		func() (addr.Addr, bool) { return garbage.Addr, true },
		func() { cleared = true },
	)

	marker := New(h, &rs)
	marker.MarkLiveObjects()

	assert.True(t, cleared)
}

func TestTransferMarkMovesBitBetweenAddresses(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)
	o, _ := h.AllocateOld(heap.OldPointer, 2, m)

	bm, _ := h.BitmapFor(o.Addr)
	bm.Set(o.Addr)

	dest, _ := h.AllocateOld(heap.OldData, 2, m)
	TransferMark(h, o.Addr, dest.Addr)

	bmFrom, _ := h.BitmapFor(o.Addr)
	bmTo, _ := h.BitmapFor(dest.Addr)
	assert.False(t, bmFrom.Get(o.Addr))
	assert.True(t, bmTo.Get(dest.Addr))
}
