package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/abiosoft/readline"
	"github.com/spf13/cobra"
	"github.com/squish-sh/squish/core/config"
	"github.com/squish-sh/squish/core/shell"
	"golang.org/x/term"
)

var (
	cfgPath     string
	command     string
	debug       bool
	noAutostart bool

	// exitCode is set by commands that decide the process status themselves.
	exitCode int
)

func loadConfig(cmd *cobra.Command) *config.Configuration {
	configuration, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "squish: %v, using defaults\n", err)
		return config.Default(cfgPath)
	}
	return configuration
}

func newLogger(cmd *cobra.Command) *log.Logger {
	if debug {
		return log.New(cmd.ErrOrStderr(), "squish: ", 0)
	}
	return log.New(io.Discard, "", 0)
}

// self is the binary re-run for forked builtins and background chains.
func self() string {
	path, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return path
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "squish [script]",
	Short: "An interactive shell with job control",
	Long: `squish runs pipelines with job control: stop jobs with Ctrl-Z, resume
them with fg and bg, and send them to the background with &.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		cfg := loadConfig(cmd)

		interactive := command == "" && len(args) == 0 && term.IsTerminal(int(os.Stdin.Fd()))
		s, err := shell.New(shell.Options{
			Config:      cfg,
			Self:        self(),
			Log:         logger,
			Interactive: interactive,
		})
		if err != nil {
			return err
		}

		switch {
		case command != "":
			s.RunLine(command)
			exitCode = s.ExitCode()
			return nil

		case len(args) == 1:
			script, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer script.Close()
			exitCode = s.RunScript(script)
			return nil

		case !interactive:
			exitCode = s.RunScript(os.Stdin)
			return nil
		}

		historyFile, historyLimit := cfg.HistoryPath(), cfg.HistorySize
		if historyLimit == 0 {
			historyFile, historyLimit = "", -1
		}
		rl, err := readline.NewEx(&readline.Config{
			HistoryFile:     historyFile,
			HistoryLimit:    historyLimit,
			AutoComplete:    &shell.Completer{Shell: s},
			InterruptPrompt: "^C",
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		if !noAutostart {
			s.Autostart()
		}
		exitCode = s.Run(rl)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It returns the status the process exits with.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "squish: %v\n", err)
		return 1
	}
	return exitCode
}

func init() {
	defaultConfig := os.Getenv(shell.EnvConfig)
	if defaultConfig == "" {
		defaultConfig = config.DefaultDir()
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfig, "config directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log internal diagnostics to stderr")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a command line and exit")
	rootCmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "skip the configured autostart lines")
}
