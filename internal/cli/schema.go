package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brood-run/brood/internal/config"
)

var schemaPlain bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Display the schema for the brood configuration file",
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaPlain, "plain", false, "Print the schema with no surrounding decoration")
}

func runSchema(cmd *cobra.Command, args []string) error {
	j, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("render schema: %w", err)
	}

	if schemaPlain {
		fmt.Println(string(j))
		return nil
	}

	color.New(color.Bold).Println("Configuration Schema")
	fmt.Println(string(j))
	return nil
}
