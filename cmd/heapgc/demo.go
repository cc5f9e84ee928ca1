package main

import (
	"github.com/markcompact/heapgc"
	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/roots"
	"github.com/markcompact/heapgc/internal/storebuffer"
	"github.com/markcompact/heapgc/internal/visitor"
)

// buildDemoHeap constructs a small synthetic heap for the inspection
// commands to operate on: this collector has no core-dump reader (unlike
// the teacher's viewcore, which opens a real process snapshot), so every
// command here drives an in-process simulated heap instead.
func buildDemoHeap() (*heapgc.Collector, *heap.Heap, *roots.RootSet) {
	h := heap.NewHeap(addr.Addr(0), 4096)
	rs := &roots.RootSet{}
	sb := storebuffer.New()

	objMap := heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)
	baseMap := objMap.Transition("x", func() *heap.Map {
		return heap.NewMap(0, heap.JSObjectFamily, visitor.IDJSObject)
	})

	root, _ := h.AllocateYoung(2, objMap)
	child, _ := h.AllocateYoung(2, baseMap)
	root.Slots = []addr.Addr{child.Addr}
	rs.AddStrong("global.root", func() (addr.Addr, bool) { return root.Addr, true })

	// An object nothing points to: survives until the first collection.
	h.AllocateYoung(2, objMap)

	codeMap := heap.NewMap(0, heap.CodeFamily, visitor.IDCode)
	for i := 0; i < 3; i++ {
		h.AllocateOld(heap.Code, 4, codeMap)
	}

	c := heapgc.NewCollector(h, rs, sb)
	return c, h, rs
}
