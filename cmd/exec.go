package cmd

import (
	"github.com/spf13/cobra"
	"github.com/squish-sh/squish/core/launch"
	"github.com/squish-sh/squish/core/shell"
)

// builtinCmd runs one builtin as a pipeline stage. The shell re-runs itself
// with it because a builtin can't be forked without an exec.
var builtinCmd = &cobra.Command{
	Use:                launch.BuiltinCommand + " NAME [ARG...]",
	Hidden:             true,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := shell.New(shell.Options{
			Config: loadConfig(cmd),
			Self:   self(),
			Log:    newLogger(cmd),
			Forked: true,
		})
		if err != nil {
			return err
		}

		exitCode = s.Dispatch(args[0], args[1:])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinCmd)
}
