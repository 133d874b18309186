// Command brood runs a set of commands described in a configuration file
// and supervises them (spec.md §1).
package main

import (
	"os"

	"github.com/brood-run/brood/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
