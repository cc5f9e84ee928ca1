package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markcompact/heapgc/internal/heap"
)

func typeName(o *heap.Object) string {
	switch {
	case o.AsMap != nil:
		return "map"
	case o.Map != nil:
		return o.Map.Family.String()
	default:
		return fmt.Sprintf("unk%d", o.Words*8)
	}
}

// objectsCmd mirrors cmd/viewcore's "objects" command: one line per live
// object, address then type name.
func objectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "objects",
		Short: "List every live object in the demo heap",
		Run: func(cmd *cobra.Command, args []string) {
			_, h, _ := buildDemoHeap()
			h.Nursery.Active().ForEachObject(func(o *heap.Object) {
				fmt.Printf("%16s %s\n", o.Addr, typeName(o))
			})
			for _, k := range heap.SpaceOrder {
				if k == heap.New {
					continue
				}
				h.Space(k).ForEachObject(func(o *heap.Object) bool {
					fmt.Printf("%16s %s\n", o.Addr, typeName(o))
					return true
				})
			}
		},
	}
}
