// Package heapgc is the collector's Controller: it sequences one
// stop-the-world cycle through Prepare → MarkLiveObjects → SweepSpaces →
// Finish, owning the single *heap.Heap, *roots.RootSet and
// *storebuffer.Buffer the cycle operates over (spec §4.9, §5).
//
// Grounded on the phased Stats/Statistic tree construction in
// golang.org/x/debug/internal/gocore/process.go (groupStat/leafStat) for
// the fragmentation breakdown Finish consults, and on that package's
// bitmask Flags type (FlagTypes, FlagReverse) for the Tunables bit-flag
// convention — here expanded into named bool fields since this collector's
// tunables gate independent behaviors rather than independent output
// columns.
package heapgc

import (
	"fmt"

	"github.com/markcompact/heapgc/internal/codeflush"
	"github.com/markcompact/heapgc/internal/heap"
	"github.com/markcompact/heapgc/internal/maptransition"
	"github.com/markcompact/heapgc/internal/mark"
	"github.com/markcompact/heapgc/internal/roots"
	"github.com/markcompact/heapgc/internal/scavenge"
	"github.com/markcompact/heapgc/internal/storebuffer"
	"github.com/markcompact/heapgc/internal/sweep"
)

// Phase names one state of the Controller's cycle state machine (spec
// §4.9).
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePrepareGC
	PhaseMarkLiveObjects
	PhaseSweepSpaces
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhasePrepareGC:
		return "PREPARE_GC"
	case PhaseMarkLiveObjects:
		return "MARK_LIVE_OBJECTS"
	case PhaseSweepSpaces:
		return "SWEEP_SPACES"
	default:
		return "UNKNOWN"
	}
}

// Cycle accumulates the diagnostics produced by one pass through the phase
// state machine: counts per phase, with no timing information.
type Cycle struct {
	Compacting     bool
	CollectedMaps  bool
	ObjectsMarked  int
	OverflowPasses int
	MapsPruned     int
	CodeFlushed    int
	Swept          sweep.Result
	MapSwept       sweep.Result
	Promoted       int
	Survivors      int
}

// Collector is the single value that owns a cycle's state, replacing the
// static singletons of the source system (spec §5): one process may run
// several independent Collectors over independent heaps, never the same
// Collector concurrently with itself.
type Collector struct {
	Heap     *heap.Heap
	Roots    *roots.RootSet
	Store    *storebuffer.Buffer
	Tunables Tunables
	Flusher  *codeflush.Flusher

	phase           Phase
	compactOnNextGC bool
	cycle           *Cycle
}

// NewCollector returns an idle Collector with default Tunables, wired to
// the given heap, root set and store buffer.
func NewCollector(h *heap.Heap, rs *roots.RootSet, sb *storebuffer.Buffer) *Collector {
	return &Collector{Heap: h, Roots: rs, Store: sb, Tunables: DefaultTunables(), phase: PhaseIdle}
}

// EnableCodeFlushing installs a Flusher using stub as the lazy-compile
// code candidates get rebound to. Code flushing is a no-op until this is
// called, since a stub object is an embedder-supplied resource this
// package has no way to synthesize on its own.
func (c *Collector) EnableCodeFlushing(stub *heap.Object) {
	c.Flusher = codeflush.New(stub)
}

// Phase reports the Controller's current state.
func (c *Collector) Phase() Phase { return c.phase }

// CompactOnNextGC reports whether the fragmentation heuristic from the
// last Finish armed compaction for the next cycle.
func (c *Collector) CompactOnNextGC() bool { return c.compactOnNextGC }

// Stats walks the heap's spaces and returns a Statistic breakdown, for
// heapgc stats/breakdown.
func (c *Collector) Stats() *heap.Statistic { return c.Heap.Stats() }

func (c *Collector) requirePhase(want Phase, method string) {
	if c.phase != want {
		panic(fmt.Sprintf("heapgc: %s called in phase %s, want %s", method, c.phase, want))
	}
}

// Prepare transitions IDLE → PREPARE_GC and decides whether this cycle
// compacts (spec §4.9): AlwaysCompact/NeverCompact are absolute; otherwise
// the persistent compactOnNextGC bit (armed by the previous Finish) decides,
// vetoed by DebuggerForbidsCompaction. An active incremental cycle forces
// both compaction and map collection off.
func (c *Collector) Prepare() *Cycle {
	c.requirePhase(PhaseIdle, "Prepare")

	cyc := &Cycle{}
	switch {
	case c.Tunables.IncrementalMarking:
		cyc.Compacting = false
	case c.Tunables.NeverCompact:
		cyc.Compacting = false
	case c.Tunables.AlwaysCompact:
		cyc.Compacting = true
	default:
		cyc.Compacting = c.compactOnNextGC
	}
	if c.Tunables.DebuggerForbidsCompaction {
		cyc.Compacting = false
	}
	cyc.CollectedMaps = c.Tunables.CollectMaps && !c.Tunables.IncrementalMarking

	c.compactOnNextGC = false
	c.cycle = cyc
	c.phase = PhasePrepareGC
	return cyc
}

// mapRoots returns every Map in MapSpace with no back pointer — the root of
// a distinct transition tree — so CreateBackPointers/ClearNonLiveTransitions
// can be driven over each tree in turn.
func (c *Collector) mapRoots() []*heap.Map {
	var out []*heap.Map
	c.Heap.Space(heap.MapSpace).ForEachObject(func(o *heap.Object) bool {
		if o.AsMap != nil && o.AsMap.BackPointer == nil {
			out = append(out, o.AsMap)
		}
		return true
	})
	return out
}

func (c *Collector) isMarked(o *heap.Object) bool {
	bm, ok := c.Heap.BitmapFor(o.Addr)
	return ok && bm.Get(o.Addr)
}

// MarkLiveObjects transitions PREPARE_GC → MARK_LIVE_OBJECTS: runs
// CreateBackPointers over every map-transition tree (pre-marking), the full
// mark phase, ClearNonLiveTransitions (post-marking, pre-sweep), and the
// CodeFlusher's after-marking candidate pass (spec §5 ordering).
func (c *Collector) MarkLiveObjects() *Cycle {
	c.requirePhase(PhasePrepareGC, "MarkLiveObjects")
	cyc := c.cycle

	var mapRoots []*heap.Map
	if cyc.CollectedMaps {
		mapRoots = c.mapRoots()
		for _, r := range mapRoots {
			maptransition.CreateBackPointers(r)
		}
	}

	m := mark.New(c.Heap, c.Roots)
	m.FlushCode = c.Flusher != nil && c.Tunables.FlushCode
	m.MarkLiveObjects()
	cyc.ObjectsMarked = m.ObjectsMarked
	cyc.OverflowPasses = m.OverflowPasses

	if cyc.CollectedMaps {
		isMarked := func(mm *heap.Map) bool {
			o, ok := c.Heap.Resolve(mm.Addr)
			return ok && c.isMarked(o)
		}
		for _, r := range mapRoots {
			cyc.MapsPruned += maptransition.ClearNonLiveTransitions(r, isMarked)
		}
	}

	if c.Flusher != nil && c.Tunables.FlushCode {
		c.Flusher.CodeAgeThreshold = c.Tunables.CodeAgeThreshold
		c.Flusher.SetDebuggerAttached(c.Tunables.DebuggerAttached)
		c.Flusher.BumpAges(c.isMarked, func(o *heap.Object) bool { return o.ExecutedSinceGC })
		cyc.CodeFlushed = c.Flusher.ProcessCandidates(c.isMarked)
		cyc.CodeFlushed += c.Flusher.ProcessJSFunctionCandidates(c.isMarked)
	}

	c.phase = PhaseMarkLiveObjects
	return cyc
}

// SweepSpaces transitions MARK_LIVE_OBJECTS → SWEEP_SPACES: sweeps every
// non-map old space (precisely if this cycle is compacting), scavenges the
// nursery, then sweeps map space last and always precisely (spec §5:
// "map space is always swept last and precisely").
func (c *Collector) SweepSpaces() *Cycle {
	c.requirePhase(PhaseMarkLiveObjects, "SweepSpaces")
	cyc := c.cycle

	sw := sweep.New()
	cyc.Swept = sw.SweepHeap(c.Heap, cyc.Compacting, c.Roots)

	sv := scavenge.New(c.Heap, c.Store, c.Roots)
	sv.Scavenge()
	cyc.Promoted = sv.Promoted
	cyc.Survivors = sv.Survivors

	cyc.MapSwept = sw.SweepMapSpace(c.Heap)

	c.phase = PhaseSweepSpaces
	return cyc
}

// Finish transitions SWEEP_SPACES → IDLE and evaluates the fragmentation
// heuristic: estimated recoverable bytes over both
// Tunables.FragmentationLimitPercent of used old-space bytes and
// Tunables.FragmentationAllowedBytes arms compaction for the next cycle
// (spec §4.9). NeverCompact vetoes arming regardless of fragmentation.
func (c *Collector) Finish() *Cycle {
	c.requirePhase(PhaseSweepSpaces, "Finish")
	cyc := c.cycle

	if !c.Tunables.NeverCompact {
		c.compactOnNextGC = c.fragmented()
	}

	c.phase = PhaseIdle
	c.cycle = nil
	return cyc
}

func (c *Collector) fragmented() bool {
	var used, free int64
	for _, k := range heap.SpaceOrder {
		if k == heap.New {
			continue
		}
		sp := c.Heap.Space(k)
		used += sp.UsedBytes()
		sp.ForEachPage(func(p *heap.Page) {
			free += p.FreeList.Bytes()
		})
	}
	if used == 0 {
		return free > c.Tunables.FragmentationAllowedBytes
	}
	pct := float64(free) * 100 / float64(used)
	return pct > float64(c.Tunables.FragmentationLimitPercent) && free > c.Tunables.FragmentationAllowedBytes
}

// Collect runs one full cycle (Prepare, MarkLiveObjects, SweepSpaces,
// Finish) and returns its diagnostics. It is the entry point for callers
// that don't need to observe individual phases.
func (c *Collector) Collect() *Cycle {
	c.Prepare()
	c.MarkLiveObjects()
	c.SweepSpaces()
	return c.Finish()
}
