package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/markcompact/heapgc/internal/heap"
)

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Print a few overall statistics about the demo heap",
		Run: func(cmd *cobra.Command, args []string) {
			_, h, rs := buildDemoHeap()
			t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
			fmt.Fprintf(t, "nursery\t%d words/semispace\n", h.Nursery.Active().Words)
			fmt.Fprintf(t, "strong roots\t%d\n", rs.StrongCount())
			fmt.Fprintf(t, "weak roots\t%d\n", rs.WeakCount())
			fmt.Fprintf(t, "object groups\t%d\n", rs.GroupCount())
			for _, k := range heap.SpaceOrder {
				if k == heap.New {
					continue
				}
				fmt.Fprintf(t, "%s pages\t%d\n", k, len(h.Space(k).Pages))
			}
			t.Flush()
		},
	}
}
