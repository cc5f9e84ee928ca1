package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// simulateCmd runs several back-to-back collections over the demo heap and
// prints each cycle's diagnostics, so a user can watch compactOnNextGC and
// the fragmentation heuristic evolve without re-invoking the binary per
// cycle.
func simulateCmd() *cobra.Command {
	var cycles int
	var compact bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run several collections back to back and print their diagnostics",
		Run: func(cmd *cobra.Command, args []string) {
			c, _, _ := buildDemoHeap()
			c.Tunables.AlwaysCompact = compact
			for i := 0; i < cycles; i++ {
				cyc := c.Collect()
				fmt.Printf("cycle %d: marked=%d promoted=%d survivors=%d compacting=%v compactNext=%v\n",
					i, cyc.ObjectsMarked, cyc.Promoted, cyc.Survivors, cyc.Compacting, c.CompactOnNextGC())
			}
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 3, "number of collections to run")
	cmd.Flags().BoolVar(&compact, "compact", false, "force compaction every cycle")
	return cmd
}
