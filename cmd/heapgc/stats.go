package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/markcompact/heapgc/internal/heap"
)

// statsCmd mirrors cmd/viewcore's "breakdown" command: a recursive
// tabwriter dump of the Statistic tree, adapted from a post-mortem read to
// a live Collector query over the demo heap.
func statsCmd() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"breakdown"},
		Short:   "Run one collection and print the post-collection memory breakdown",
		Run: func(cmd *cobra.Command, args []string) {
			c, _, _ := buildDemoHeap()
			c.Tunables.AlwaysCompact = compact
			cyc := c.Collect()

			fmt.Printf("objects marked: %d (overflow passes: %d)\n", cyc.ObjectsMarked, cyc.OverflowPasses)
			fmt.Printf("maps pruned: %d, code flushed: %d\n", cyc.MapsPruned, cyc.CodeFlushed)
			fmt.Printf("nursery promoted: %d, survivors: %d\n", cyc.Promoted, cyc.Survivors)
			fmt.Printf("compacting: %v, compact next cycle: %v\n\n", cyc.Compacting, c.CompactOnNextGC())

			t := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', tabwriter.AlignRight)
			all := c.Stats()
			var printStat func(*heap.Statistic, string)
			printStat = func(s *heap.Statistic, indent string) {
				fmt.Fprintf(t, "%s\t%d objs\t%d bytes\n", indent+s.Name, s.Count, s.Bytes)
				for _, child := range s.Children() {
					printStat(child, indent+"  ")
				}
			}
			printStat(all, "")
			t.Flush()
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "force compaction for this cycle")
	return cmd
}
