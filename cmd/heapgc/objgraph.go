package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markcompact/heapgc/internal/addr"
	"github.com/markcompact/heapgc/internal/heap"
)

// objgraphCmd mirrors cmd/viewcore's "objgraph" command: dump the object
// graph to tmp.dot in the same Graphviz format, now driven off a live
// demo heap's Slots rather than a core dump's decoded pointers.
func objgraphCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "objgraph",
		Short: "Dump the demo heap's object graph as a Graphviz .dot file",
		Run: func(cmd *cobra.Command, args []string) {
			_, h, rs := buildDemoHeap()
			w, err := os.Create(out)
			if err != nil {
				exitf("%v\n", err)
			}
			defer w.Close()

			fmt.Fprintf(w, "digraph {\n")
			i := 0
			rs.ForEachStrong(func(name string, target addr.Addr) {
				fmt.Fprintf(w, "r%d [label=%q,shape=hexagon]\n", i, name)
				fmt.Fprintf(w, "r%d -> o%s\n", i, target)
				i++
			})
			dumpObjects(w, h.Nursery.Active())
			for _, k := range heap.SpaceOrder {
				if k == heap.New {
					continue
				}
				h.Space(k).ForEachObject(func(o *heap.Object) bool {
					writeObjectNode(w, o)
					return true
				})
			}
			fmt.Fprintf(w, "}\n")
			fmt.Fprintf(os.Stderr, "wrote object graph to %q\n", out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "tmp.dot", "output .dot file path")
	return cmd
}

func dumpObjects(w *os.File, s *heap.Semispace) {
	s.ForEachObject(func(o *heap.Object) { writeObjectNode(w, o) })
}

func writeObjectNode(w *os.File, o *heap.Object) {
	fmt.Fprintf(w, "o%s [label=%q]\n", o.Addr, typeName(o))
	for _, target := range o.Slots {
		fmt.Fprintf(w, "o%s -> o%s\n", o.Addr, target)
	}
}
