// Package heap implements the collector's address-space model: Spaces,
// Pages, class descriptors ("Maps"), the nursery's two semispaces, and the
// heap-wide statistics tree, along with the minimal allocator contract
// (AllocateRaw/Free/Flip) the collector's other packages are written
// against.
//
// The Space/Page shape and the Statistic tree are grounded on
// golang.org/x/debug/internal/gocore/process.go: that package already
// partitions a Go process's address space into named regions with their own
// page bookkeeping and builds exactly this kind of group/leaf statistics
// tree (groupStat/leafStat) to report memory breakdown. Here the model is
// read/write instead of a read-only post-mortem view.
package heap

import (
	"sort"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/bitmap"
)

// SpaceKind names one of the heap's distinguished regions (spec §3).
type SpaceKind int

const (
	New SpaceKind = iota
	OldPointer
	OldData
	Code
	MapSpace
	Cell
	Large
)

func (k SpaceKind) String() string {
	switch k {
	case New:
		return "new"
	case OldPointer:
		return "old-pointer"
	case OldData:
		return "old-data"
	case Code:
		return "code"
	case MapSpace:
		return "map"
	case Cell:
		return "cell"
	case Large:
		return "large"
	default:
		return "unknown"
	}
}

// SpaceOrder is the fixed walk order the overflow-recovery loop uses (spec
// §4.4 step 7): "new, old-pointer, old-data, code, map, cell, large".
var SpaceOrder = []SpaceKind{New, OldPointer, OldData, Code, MapSpace, Cell, Large}

// PageWords is the default page size: 1 MiB worth of machine words (spec
// §3, "a fixed-size region (power-of-two, e.g. 1 MiB)").
const PageWords = (1 << 20) / addr.WordSize

// Movable reports whether objects in this kind of space may be relocated by
// compaction. Code and Map space are never compacted (Code is always swept
// precisely; Map space is precisely swept and excluded from the compaction
// machinery by spec §4.7/§4.9).
func (k SpaceKind) Movable() bool {
	switch k {
	case OldPointer, OldData:
		return true
	default:
		return false
	}
}

// PreciseByDefault reports whether this space is always swept precisely
// rather than conservatively (spec §4.7).
func (k SpaceKind) PreciseByDefault() bool {
	switch k {
	case Code, MapSpace, Cell:
		return true
	default:
		return false
	}
}

// Space is a named region of old-generation address space containing zero
// or more Pages. The nursery ("new") is modeled separately by Nursery, since
// its allocation and collection discipline (bump-allocate, two-space copy)
// is unrelated to the paged old spaces' mark/sweep/free-list discipline.
type Space struct {
	Kind  SpaceKind
	Pages []*Page

	// MaxPages caps how many pages this space may grow to; -1 (the value
	// NewSpace sets) means unbounded. The Scavenger relies on being
	// able to cap old-space growth to exercise its promotion-failure
	// fallback (spec §4.8, "if the old-space allocation fails, allocate in
	// `to` semispace").
	MaxPages int

	nextPageBase addr.Addr
}

// NewSpace constructs an empty old-generation space of the given kind with
// unbounded page growth.
func NewSpace(kind SpaceKind, base addr.Addr) *Space {
	return &Space{Kind: kind, MaxPages: -1, nextPageBase: base}
}

// AddPage appends a freshly allocated, empty Page to the space and returns
// it. Real allocators grow a space lazily as AllocateRaw demands it; tests
// and the CLI's synthetic-heap builder call this directly.
func (s *Space) AddPage() *Page {
	p := &Page{
		Space:   s,
		Base:    s.nextPageBase,
		Words:   PageWords,
		Bitmap:  bitmap.New(s.nextPageBase, PageWords),
		objects: make(map[addr.Addr]*Object),
	}
	p.FreeList = newFreeList(p)
	s.Pages = append(s.Pages, p)
	s.nextPageBase = s.nextPageBase.Add(PageWords * addr.WordSize)
	return p
}

// AllocateRaw carves `words` words out of the first page with enough
// contiguous free space, falling back to a freshly added page. Returns the
// object's start address, or ok=false on failure (spec §6,
// "space.AllocateRaw(size) → Result<Addr, OOM>").
func (s *Space) AllocateRaw(words int64) (addr.Addr, bool) {
	for _, p := range s.Pages {
		if a, ok := p.FreeList.Allocate(words); ok {
			return a, true
		}
	}
	if s.MaxPages >= 0 && len(s.Pages) >= s.MaxPages {
		return 0, false
	}
	p := s.AddPage()
	return p.FreeList.Allocate(words)
}

// Free adds [a, a+words*wordsize) back to its page's free-list. The
// decision of whether a region is freeable at all belongs to the Sweeper;
// Free itself is opaque bookkeeping, per spec §4.7 ("Free-list policy is
// opaque to the Sweeper").
func (s *Space) Free(a addr.Addr, words int64) {
	p := s.pageFor(a)
	if p == nil {
		panic("heap: Free on address outside this space")
	}
	p.FreeList.free(a, words)
}

func (s *Space) pageFor(a addr.Addr) *Page {
	for _, p := range s.Pages {
		if a >= p.Base && a < p.Base.Add(p.Words*addr.WordSize) {
			return p
		}
	}
	return nil
}

// ForEachPage calls fn for every page in the space, in address order.
func (s *Space) ForEachPage(fn func(*Page)) {
	for _, p := range s.Pages {
		fn(p)
	}
}

// ForEachObject calls fn for every object registered on the space's pages,
// marked or not, in address order, stopping early if fn returns false.
func (s *Space) ForEachObject(fn func(*Object) bool) {
	for _, p := range s.Pages {
		if !p.ForEachObject(fn) {
			return
		}
	}
}

// UsedBytes returns the total size of objects currently registered on this
// space's pages. It does not require a bitmap scan: the page object index is
// authoritative between collections.
func (s *Space) UsedBytes() int64 {
	var total int64
	for _, p := range s.Pages {
		for _, o := range p.objects {
			total += o.Words * addr.WordSize
		}
	}
	return total
}

// sortedAddrs is a small helper used by deterministic iteration elsewhere in
// this package (object index dumps, tests).
func sortedAddrs(m map[addr.Addr]*Object) []addr.Addr {
	out := make([]addr.Addr, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
