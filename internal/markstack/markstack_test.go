package markstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markcompact/heapgc/internal/addr"
)

func TestPushPopOrderIsLIFO(t *testing.T) {
	s := New(4)
	require.True(t, s.Push(addr.Addr(1)))
	require.True(t, s.Push(addr.Addr(2)))
	require.True(t, s.Push(addr.Addr(3)))

	a, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, addr.Addr(3), a)
}

func TestOverflowOnFullPush(t *testing.T) {
	s := New(1)
	require.True(t, s.Push(addr.Addr(1)))
	assert.True(t, s.IsFull())

	ok := s.Push(addr.Addr(2))
	assert.False(t, ok)
	assert.True(t, s.Overflowed())

	// The dropped push must not have been stored: popping still yields
	// only the first address.
	a, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, addr.Addr(1), a)
	assert.True(t, s.IsEmpty())
}

func TestClearOverflow(t *testing.T) {
	s := New(1)
	s.Push(addr.Addr(1))
	s.Push(addr.Addr(2))
	require.True(t, s.Overflowed())
	s.ClearOverflow()
	assert.False(t, s.Overflowed())
}

func TestCapacityOfOneStillCompletes(t *testing.T) {
	// Spec §8 boundary behavior: "Marking stack capacity set to 1 still
	// completes (via overflow recovery)."
	s := New(1)
	require.True(t, s.Push(addr.Addr(10)))
	a, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, addr.Addr(10), a)
	require.True(t, s.Push(addr.Addr(20)))
	assert.False(t, s.Push(addr.Addr(30)))
	assert.True(t, s.Overflowed())
}

func TestInitResizesAndResetsState(t *testing.T) {
	s := New(2)
	s.Push(addr.Addr(1))
	s.Push(addr.Addr(2))
	s.Push(addr.Addr(3)) // overflow

	s.Init(addr.Addr(0), addr.Addr(8*16))
	assert.Equal(t, 16, s.Cap())
	assert.True(t, s.IsEmpty())
	assert.False(t, s.Overflowed())
}
