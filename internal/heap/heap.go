package heap

import (
	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/bitmap"
)

// Heap ties together the old-generation Spaces, the Nursery, and a
// back-reference index from address to owning Object/Map, giving the rest
// of the collector one object to carry around instead of threading five
// separate arguments (spec §9: "eliminate static singletons... route all
// collector state through one value").
type Heap struct {
	Spaces  map[SpaceKind]*Space
	Nursery *Nursery

	// OldSpaceBase is where the old-generation address range begins; used by
	// components (e.g. the store buffer) that need to classify an address
	// as "in the nursery" vs "in old space" cheaply.
	OldSpaceBase addr.Addr
}

// NewHeap constructs a Heap with one empty Space per kind in SpaceOrder
// (excluding New, which is modeled by Nursery) plus a nursery of the given
// per-semispace size, laid out contiguously starting at base.
func NewHeap(base addr.Addr, nurserySemispaceWords int64) *Heap {
	h := &Heap{Spaces: make(map[SpaceKind]*Space)}
	h.Nursery = NewNursery(base, nurserySemispaceWords)
	next := base.Add(2 * nurserySemispaceWords * addr.WordSize)
	h.OldSpaceBase = next
	for _, k := range SpaceOrder {
		if k == New {
			continue
		}
		h.Spaces[k] = NewSpace(k, next)
		next = next.Add(64 * PageWords * addr.WordSize) // generous separation between regions
	}
	return h
}

// InNursery reports whether a lies within either nursery semispace.
func (h *Heap) InNursery(a addr.Addr) bool { return h.Nursery.InNursery(a) }

// BitmapFor returns the MarkingBitmap covering address a, whichever region
// it falls in.
func (h *Heap) BitmapFor(a addr.Addr) (*bitmap.Bitmap, bool) {
	if h.Nursery.Active().Contains(a) {
		return h.Nursery.Active().Bitmap, true
	}
	if h.Nursery.Idle().Contains(a) {
		return h.Nursery.Idle().Bitmap, true
	}
	for _, k := range SpaceOrder {
		if k == New {
			continue
		}
		if p := h.Spaces[k].pageFor(a); p != nil {
			return p.Bitmap, true
		}
	}
	return nil, false
}

// Resolve finds the *Object starting exactly at a, searching the nursery's
// active semispace, then its idle semispace, then every old-generation space. It is the single
// address-to-object lookup the marker, visitor dispatch table and scavenger
// all share, so none of them needs to know which region an address lives in.
func (h *Heap) Resolve(a addr.Addr) (*Object, bool) {
	if o, ok := h.Nursery.Active().Lookup(a); ok {
		return o, true
	}
	if o, ok := h.Nursery.Idle().Lookup(a); ok {
		return o, true
	}
	for _, k := range SpaceOrder {
		if k == New {
			continue
		}
		s := h.Spaces[k]
		if p := s.pageFor(a); p != nil {
			if o, ok := p.Lookup(a); ok {
				return o, true
			}
		}
	}
	return nil, false
}

// Space returns the named old-generation space.
func (h *Heap) Space(k SpaceKind) *Space { return h.Spaces[k] }

// AllocateYoung bump-allocates a fresh object of the given word size into
// the nursery's active semispace, wiring up its Map.
func (h *Heap) AllocateYoung(words int64, m *Map) (*Object, bool) {
	a, ok := h.Nursery.AllocateRaw(words)
	if !ok {
		return nil, false
	}
	o := &Object{Addr: a, Words: words, Map: m}
	h.Nursery.Active().Register(o)
	return o, true
}

// AllocateOld places a fresh object directly into an old-generation space,
// bypassing the nursery. Used for pre-tenured allocations (e.g. synthetic
// test heaps, or large objects which spec §4.9 always routes to Large
// space) and by the Scavenger when promoting a survivor.
func (h *Heap) AllocateOld(k SpaceKind, words int64, m *Map) (*Object, bool) {
	s := h.Spaces[k]
	a, ok := s.AllocateRaw(words)
	if !ok {
		return nil, false
	}
	o := &Object{Addr: a, Words: words, Map: m}
	s.pageFor(a).Register(o)
	return o, true
}

// PlaceMap allocates a Map object (a Map instance living in MapSpace) and
// returns both the Object wrapper and the Map value.
func (h *Heap) PlaceMap(m *Map, words int64) (*Object, bool) {
	s := h.Spaces[MapSpace]
	a, ok := s.AllocateRaw(words)
	if !ok {
		return nil, false
	}
	m.Addr = a
	m.InstanceWords = words
	o := &Object{Addr: a, Words: words, AsMap: m}
	s.pageFor(a).Register(o)
	return o, true
}

// Stats walks every old-generation space plus the nursery and builds a
// Statistic tree broken down by space, then by map family.
func (h *Heap) Stats() *Statistic {
	root := NewStatistic("heap")
	for _, k := range SpaceOrder {
		if k == New {
			h.Nursery.Active().ForEachObject(func(o *Object) {
				root.Add(o.Words*addr.WordSize, "new", mapFamilyOf(o).String())
			})
			continue
		}
		s := h.Spaces[k]
		s.ForEachObject(func(o *Object) bool {
			root.Add(o.Words*addr.WordSize, k.String(), mapFamilyOf(o).String())
			return true
		})
	}
	return root
}

func mapFamilyOf(o *Object) MapFamily {
	if o.AsMap != nil {
		return MapFamilyItself
	}
	if o.Map != nil {
		return o.Map.Family
	}
	return JSObjectFamily
}
