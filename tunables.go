package heapgc

import "github.com/markcompact/heapgc/internal/codeflush"

// Tunables holds the collector's run-time options (spec §9, carried over
// verbatim from the distilled spec.md). Library defaults favor exercising
// the machinery this module implements (compaction, map collection, code
// flushing) rather than leaving it dark, per the decision recorded in
// SPEC_FULL.md §10: "the compaction machinery is live and testable rather than
// dead code."
type Tunables struct {
	// AlwaysCompact forces every cycle to compact the old generation.
	AlwaysCompact bool
	// NeverCompact overrides AlwaysCompact and the fragmentation heuristic.
	NeverCompact bool
	// CollectMaps runs the MapTransitionCleaner. Auto-disabled whenever
	// IncrementalMarking is set (spec §4.6).
	CollectMaps bool
	// FlushCode runs the CodeFlusher's after-marking pass. Auto-disabled
	// whenever DebuggerAttached is set (spec §4.5).
	FlushCode bool
	// IncrementalMarking models an incremental cycle being in progress;
	// when true, Prepare forces compaction and map collection off (spec
	// §4.9).
	IncrementalMarking bool
	// DebuggerAttached disables code flushing for the running cycle.
	DebuggerAttached bool
	// DebuggerForbidsCompaction vetoes compaction regardless of the other
	// flags (spec §4.9).
	DebuggerForbidsCompaction bool

	// FragmentationLimitPercent and FragmentationAllowedBytes gate the
	// "arm compaction for next cycle" decision in Finish (spec §4.9): both
	// thresholds must be exceeded.
	FragmentationLimitPercent int
	FragmentationAllowedBytes int64

	// CodeAgeThreshold is the number of GC cycles a SharedFunctionInfo may
	// go unexecuted before its code becomes flush-eligible (spec §4.5).
	CodeAgeThreshold uint8
	// MinRangeForMarkingRecursion is carried as a setting only: no component
	// reads it. Marking never recurses; every slot range is traversed
	// iteratively through the Marker's explicit stack.
	MinRangeForMarkingRecursion int
}

// DefaultTunables returns spec §9's defaults.
func DefaultTunables() Tunables {
	return Tunables{
		CollectMaps:                 true,
		FlushCode:                   true,
		FragmentationLimitPercent:   15,
		FragmentationAllowedBytes:   1 << 20,
		CodeAgeThreshold:            codeflush.DefaultCodeAgeThreshold,
		MinRangeForMarkingRecursion: 64,
	}
}
