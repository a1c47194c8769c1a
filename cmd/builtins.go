package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/squish-sh/squish/core/shell"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range shell.BuiltinNames() {
			b, _ := shell.LookupBuiltin(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", b.Name, b.Short)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
