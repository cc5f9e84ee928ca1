// Command heapgc is an inspection and simulation front end for the heapgc
// collector library: it builds a small in-process synthetic heap and lets
// the user run collections against it, print breakdowns, dump the object
// graph, or drive it interactively, the way cmd/viewcore lets a user poke
// at a Go process's core dump.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func main() {
	root := &cobra.Command{
		Use:   "heapgc",
		Short: "Inspect and simulate the heapgc collector",
	}
	root.AddCommand(overviewCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(objectsCmd())
	root.AddCommand(objgraphCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(replCmd())

	if err := root.Execute(); err != nil {
		exitf("%v\n", err)
	}
}
