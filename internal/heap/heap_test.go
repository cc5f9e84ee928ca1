package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markcompact/heapgc/internal/addr"
)

func TestSpaceAllocateAndFree(t *testing.T) {
	s := NewSpace(OldPointer, addr.Addr(0x1000))
	m := NewMap(0, JSObjectFamily, 1)

	a1, ok := s.AllocateRaw(4)
	require.True(t, ok)
	o1 := &Object{Addr: a1, Words: 4, Map: m}
	s.pageFor(a1).Register(o1)

	a2, ok := s.AllocateRaw(4)
	require.True(t, ok)
	assert.Equal(t, a1.Add(4*addr.WordSize), a2)

	assert.Equal(t, int64(4*addr.WordSize), s.UsedBytes())

	s.Free(a1, 4)
	assert.Equal(t, int64(0), s.UsedBytes())

	a3, ok := s.AllocateRaw(4)
	require.True(t, ok)
	assert.Equal(t, a1, a3, "freed space should be reused first-fit")
}

func TestSpaceGrowsPagesOnDemand(t *testing.T) {
	s := NewSpace(OldData, addr.Addr(0))
	require.Equal(t, 0, len(s.Pages))
	_, ok := s.AllocateRaw(4)
	require.True(t, ok)
	assert.Equal(t, 1, len(s.Pages))
}

func TestNurseryFlipSwapsActiveAndIdle(t *testing.T) {
	n := NewNursery(addr.Addr(0), 64)
	active := n.Active()
	idle := n.Idle()
	assert.NotSame(t, active, idle)

	a, ok := n.AllocateRaw(4)
	require.True(t, ok)
	assert.True(t, active.Contains(a))

	n.Flip()
	assert.Same(t, idle, n.Active(), "flip should make the old idle space active")
	assert.Equal(t, int64(0), n.Idle().UsedWords(), "new idle space must be reset")
}

func TestNurseryAllocateRawFailsWhenFull(t *testing.T) {
	n := NewNursery(addr.Addr(0), 4)
	_, ok := n.AllocateRaw(4)
	require.True(t, ok)
	_, ok = n.AllocateRaw(1)
	assert.False(t, ok)
}

func TestFreeListCoalescesAdjacentSpans(t *testing.T) {
	s := NewSpace(OldPointer, addr.Addr(0))
	a1, _ := s.AllocateRaw(2)
	a2, _ := s.AllocateRaw(2)
	a3, _ := s.AllocateRaw(2)
	s.Free(a1, 2)
	s.Free(a2, 2)
	s.Free(a3, 2)

	a4, ok := s.AllocateRaw(6)
	require.True(t, ok)
	assert.Equal(t, a1, a4, "three adjacent frees should coalesce into one 6-word span")
}

func TestHeapStatsBreaksDownBySpaceAndFamily(t *testing.T) {
	h := NewHeap(addr.Addr(0), 64)
	m := NewMap(0, JSObjectFamily, 1)
	_, ok := h.AllocateOld(OldPointer, 4, m)
	require.True(t, ok)
	_, ok = h.AllocateOld(OldPointer, 2, m)
	require.True(t, ok)

	stats := h.Stats()
	oldPtr, ok := stats.Child("old-pointer")
	require.True(t, ok)
	assert.Equal(t, int64(2), oldPtr.Count)
	assert.Equal(t, int64(6*addr.WordSize), oldPtr.Bytes)

	family, ok := oldPtr.Child("js-object")
	require.True(t, ok)
	assert.Equal(t, int64(2), family.Count)
}

func TestMapTransitionTreeSharesChildForSameProperty(t *testing.T) {
	root := NewMap(0, JSObjectFamily, 1)
	newChild := func() *Map { return NewMap(0, JSObjectFamily, 1) }

	c1 := root.Transition("x", newChild)
	c2 := root.Transition("x", newChild)
	assert.Same(t, c1, c2, "transitioning on the same property twice must return the same child")
	assert.Same(t, root, c1.BackPointer)
}
