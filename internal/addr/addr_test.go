package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignment(t *testing.T) {
	a := Addr(0x1003)
	assert.Equal(t, Addr(0x1008), a.AlignUp(8))
	assert.Equal(t, Addr(0x1000), a.AlignDown(8))
	assert.False(t, a.WordAligned())
	assert.True(t, Addr(0x1008).WordAligned())
}

func TestArithmetic(t *testing.T) {
	a := Addr(0x2000)
	b := a.Add(16)
	assert.Equal(t, Addr(0x2010), b)
	assert.Equal(t, int64(16), b.Sub(a))
	assert.Equal(t, int64(-16), a.Sub(b))
}

func TestRange(t *testing.T) {
	r := Range{Lo: Addr(0x1000), Hi: Addr(0x2000)}
	assert.Equal(t, int64(0x1000), r.Len())
	assert.True(t, r.Contains(Addr(0x1000)))
	assert.True(t, r.Contains(Addr(0x1fff)))
	assert.False(t, r.Contains(Addr(0x2000)))
}
