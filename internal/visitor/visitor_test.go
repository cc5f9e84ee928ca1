package visitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
)

func TestDispatchVisitsSlots(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.JSObjectFamily, IDJSObject)

	child, ok := h.AllocateOld(heap.OldPointer, 2, m)
	require.True(t, ok)
	parent, ok := h.AllocateOld(heap.OldPointer, 2, m)
	require.True(t, ok)
	parent.Slots = []addr.Addr{child.Addr}

	var seen []addr.Addr
	Dispatch(h, parent, func(o *heap.Object) { seen = append(seen, o.Addr) })
	assert.Equal(t, []addr.Addr{child.Addr}, seen)
}

func TestDataOnlyHasNoOutgoingEdges(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	m := heap.NewMap(0, heap.StringFamily, IDString)
	o, ok := h.AllocateOld(heap.OldData, 2, m)
	require.True(t, ok)

	var seen []addr.Addr
	Dispatch(h, o, func(c *heap.Object) { seen = append(seen, c.Addr) })
	assert.Empty(t, seen)
}

func TestConsStringShortcutSkippedInNursery(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	strMap := heap.NewMap(0, heap.StringFamily, IDString)

	first, ok := h.AllocateYoung(2, strMap)
	require.True(t, ok)
	second, ok := h.AllocateYoung(2, strMap)
	require.True(t, ok)
	flat, ok := h.AllocateYoung(2, strMap)
	require.True(t, ok)

	consMap := heap.NewMap(0, heap.ConsStringFamily, IDConsString)
	cons, ok := h.AllocateYoung(3, consMap)
	require.True(t, ok)
	cons.ConsFirst = first.Addr
	cons.ConsSecond = second.Addr
	cons.ConsFlattened = flat.Addr

	var seen []addr.Addr
	Dispatch(h, cons, func(o *heap.Object) { seen = append(seen, o.Addr) })
	assert.ElementsMatch(t, []addr.Addr{first.Addr, second.Addr}, seen,
		"a cons node still in the nursery must not take the flattened shortcut")
}

func TestConsStringShortcutTakenOutsideNursery(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	strMap := heap.NewMap(0, heap.StringFamily, IDString)

	first, _ := h.AllocateOld(heap.OldData, 2, strMap)
	second, _ := h.AllocateOld(heap.OldData, 2, strMap)
	flat, _ := h.AllocateOld(heap.OldData, 2, strMap)

	consMap := heap.NewMap(0, heap.ConsStringFamily, IDConsString)
	cons, ok := h.AllocateOld(heap.OldPointer, 3, consMap)
	require.True(t, ok)
	cons.ConsFirst = first.Addr
	cons.ConsSecond = second.Addr
	cons.ConsFlattened = flat.Addr

	var seen []addr.Addr
	Dispatch(h, cons, func(o *heap.Object) { seen = append(seen, o.Addr) })
	assert.Equal(t, []addr.Addr{flat.Addr}, seen)
}

func TestJSFunctionVisitsSharedFunctionInfoAndCode(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	dataMap := heap.NewMap(0, heap.CodeFamily, IDCode)
	sfiMap := heap.NewMap(0, heap.SharedFunctionInfoFamily, IDSharedFunctionInfo)
	fnMap := heap.NewMap(0, heap.JSFunctionFamily, IDJSFunction)

	code, _ := h.AllocateOld(heap.Code, 4, dataMap)
	sfi, _ := h.AllocateOld(heap.OldPointer, 4, sfiMap)
	sfi.AttachedCode = code

	fn, ok := h.AllocateOld(heap.OldPointer, 4, fnMap)
	require.True(t, ok)
	fn.SharedFunctionInfo = sfi
	fn.AttachedCode = code

	var seen []addr.Addr
	Dispatch(h, fn, func(o *heap.Object) { seen = append(seen, o.Addr) })
	assert.ElementsMatch(t, []addr.Addr{sfi.Addr, code.Addr}, seen)
}

func TestFlushCodeTableSkipsAttachedCodeForSharedFunctionInfoAndJSFunction(t *testing.T) {
	h := heap.NewHeap(addr.Addr(0), 64)
	dataMap := heap.NewMap(0, heap.CodeFamily, IDCode)
	sfiMap := heap.NewMap(0, heap.SharedFunctionInfoFamily, IDSharedFunctionInfo)
	fnMap := heap.NewMap(0, heap.JSFunctionFamily, IDJSFunction)

	code, _ := h.AllocateOld(heap.Code, 4, dataMap)
	sfi, _ := h.AllocateOld(heap.OldPointer, 4, sfiMap)
	sfi.AttachedCode = code

	fn, ok := h.AllocateOld(heap.OldPointer, 4, fnMap)
	require.True(t, ok)
	fn.SharedFunctionInfo = sfi
	fn.AttachedCode = code

	flushTable := NewTable(true)

	var seenSFI []addr.Addr
	flushTable.Dispatch(h, sfi, func(o *heap.Object) { seenSFI = append(seenSFI, o.Addr) })
	assert.Empty(t, seenSFI, "flush-code table must not follow a SharedFunctionInfo's AttachedCode")

	var seenFn []addr.Addr
	flushTable.Dispatch(h, fn, func(o *heap.Object) { seenFn = append(seenFn, o.Addr) })
	assert.Equal(t, []addr.Addr{sfi.Addr}, seenFn,
		"flush-code table must still follow a JSFunction's SharedFunctionInfo, just not its AttachedCode")
}
