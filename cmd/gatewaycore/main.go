// Command gatewaycore is the operational CLI around the data-retrieval
// core library: building and inspecting CDB64 index files, validating
// cache-policy files, and running a one-shot cache garbage collection pass.
// It does not serve HTTP traffic; that surface is owned by a separate
// binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "gatewaycore",
		Short: "Maintenance CLI for the Arweave gateway data-retrieval core",
	}
	root.AddCommand(cdbCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(cacheCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
