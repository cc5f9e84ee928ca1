package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markcompact/heapgc/internal/addr"
)

func TestSetClearGet(t *testing.T) {
	base := addr.Addr(0x10000)
	b := New(base, 256)

	a := base.Add(8 * 3)
	assert.False(t, b.Get(a))
	b.Set(a)
	assert.True(t, b.Get(a))
	b.Clear(a)
	assert.False(t, b.Get(a))
}

func TestColorBitsIndependentOfMark(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, 64)
	a := base.Add(8 * 5)

	b.Set(a)
	b.SetColor(a)
	assert.True(t, b.Get(a))
	assert.True(t, b.GetColor(a))

	b.ClearColor(a)
	assert.True(t, b.Get(a), "clearing color must not clear the mark bit")
	assert.False(t, b.GetColor(a))
}

func TestOverflowBitIndependentOfMarkAndColor(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, 64)
	a := base.Add(8 * 5)

	b.Set(a)
	b.SetOverflow(a)
	assert.True(t, b.Get(a))
	assert.True(t, b.GetOverflow(a))

	b.ClearOverflow(a)
	assert.True(t, b.Get(a), "clearing overflow must not clear the mark bit")
	assert.False(t, b.GetOverflow(a))
}

func TestClearRangeClearsOverflowBits(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, WordsPerCell)
	a := base.Add(16)
	b.SetOverflow(a)
	require.True(t, b.GetOverflow(a))
	b.ClearRange(base, WordsPerCell)
	assert.False(t, b.GetOverflow(a))
}

func TestClearRangeRoundsToCellBoundary(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, WordsPerCell*3)
	for i := 0; i < WordsPerCell*3; i++ {
		b.Set(base.Add(int64(i) * 8))
	}
	// Clear a single word in the middle cell; the whole cell should clear.
	b.ClearRange(base.Add(int64(WordsPerCell)*8+8), 1)
	require.True(t, b.Get(base.Add(0)))
	for i := WordsPerCell; i < WordsPerCell*2; i++ {
		assert.False(t, b.Get(base.Add(int64(i)*8)), "word %d should have been cleared", i)
	}
	assert.True(t, b.Get(base.Add(int64(WordsPerCell*2)*8)))
}

func TestIsClean(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, 64)
	assert.True(t, b.IsClean())
	b.Set(base.Add(16))
	assert.False(t, b.IsClean())
	b.Clear(base.Add(16))
	assert.True(t, b.IsClean())
}

func TestMarkBitOfOutOfRangePanics(t *testing.T) {
	b := New(addr.Addr(0x1000), 8)
	assert.Panics(t, func() {
		b.Set(addr.Addr(0))
	})
}

func TestMarkWordToObjectStarts(t *testing.T) {
	// Cell with objects starting at word offsets 0, 3, 9, 20 (spaced >=2 apart).
	var cell uint32
	for _, off := range []int{0, 3, 9, 20} {
		cell |= 1 << uint(off)
	}
	out := make([]int, WordsPerCell)
	n, err := MarkWordToObjectStarts(cell, out)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 9, 20}, out[:n])
}

func TestMarkWordToObjectStartsRejectsAdjacentBits(t *testing.T) {
	cell := uint32(0b11) // bits 0 and 1 both set: impossible for >=2-word objects
	out := make([]int, WordsPerCell)
	_, err := MarkWordToObjectStarts(cell, out)
	assert.ErrorIs(t, err, ErrAdjacentMarkBits)
}

func TestValidStartByteCountIsFixedAt55(t *testing.T) {
	assert.Equal(t, 55, ValidStartByteCount())
}

func TestPopCountBelow(t *testing.T) {
	base := addr.Addr(0)
	b := New(base, 64)
	b.Set(base.Add(0))
	b.Set(base.Add(16))
	b.Set(base.Add(40))
	assert.Equal(t, 0, b.PopCountBelow(0))
	assert.Equal(t, 1, b.PopCountBelow(2))
	assert.Equal(t, 2, b.PopCountBelow(5))
}
