// Package cli is the cobra command tree: run, schema, version (spec.md §3,
// grounded on the teacher's cobra root/subcommand layout).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "brood",
	Short:         "Run multiple commands concurrently and supervise them",
	Long:          "brood runs a set of commands described in a configuration file, watches over their lifecycle, and reacts to failures according to policy.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the command tree and returns the process's intended exit
// code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "brood: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
