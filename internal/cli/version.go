package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version and debugging information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("brood %s\n", Version)
		return nil
	},
}
