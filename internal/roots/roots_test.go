package roots

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/markcompact/heapgc/internal/addr"
)

func TestForEachStrongSkipsUnpopulatedRoots(t *testing.T) {
	var rs RootSet
	rs.AddStrong("global.foo", func() (addr.Addr, bool) { return addr.Addr(8), true })
	rs.AddStrong("stack.empty", func() (addr.Addr, bool) { return 0, false })

	var seen []string
	rs.ForEachStrong(func(name string, a addr.Addr) { seen = append(seen, name) })
	assert.Equal(t, []string{"global.foo"}, seen)
}

func TestResolveGroupsFixpointPropagatesFromAnyMember(t *testing.T) {
	var rs RootSet
	rs.AddGroup(addr.Addr(1), addr.Addr(2), addr.Addr(3))

	marked := map[addr.Addr]bool{addr.Addr(2): true}
	var pushed []addr.Addr
	n := rs.ResolveGroups(func(a addr.Addr) bool { return marked[a] }, func(a addr.Addr) {
		pushed = append(pushed, a)
		marked[a] = true
	})
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []addr.Addr{1, 3}, pushed)
}

func TestResolveGroupsNoOpWhenNoMemberMarked(t *testing.T) {
	var rs RootSet
	rs.AddGroup(addr.Addr(1), addr.Addr(2))
	n := rs.ResolveGroups(func(addr.Addr) bool { return false }, func(addr.Addr) {
		t.Fatal("push should not be called")
	})
	assert.Equal(t, 0, n)
}

func TestProcessWeakClearsUnmarkedTargets(t *testing.T) {
	var rs RootSet
	cleared := false
	rs.AddWeak("cache.entry",
		func() (addr.Addr, bool) { return addr.Addr(42), true },
		func() { cleared = true },
	)
	rs.ProcessWeak(func(addr.Addr) bool { return false })
	assert.True(t, cleared)
}

func TestProcessWeakLeavesMarkedTargetsAlone(t *testing.T) {
	var rs RootSet
	cleared := false
	rs.AddWeak("cache.entry",
		func() (addr.Addr, bool) { return addr.Addr(42), true },
		func() { cleared = true },
	)
	rs.ProcessWeak(func(addr.Addr) bool { return true })
	assert.False(t, cleared)
}
