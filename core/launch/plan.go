// Package launch turns expanded pipelines into running process groups.
//
// Launching is split in two: Plan decides what each stage is and how the
// stages are wired without touching the OS, and a Launcher executes a plan.
package launch

import (
	"github.com/squish-sh/squish/core/syntax"
)

// BuiltinCommand is the hidden subcommand a forked builtin stage runs.
const BuiltinCommand = "__builtin"

// NoPipe marks a stage end that isn't connected to a pipe.
const NoPipe = -1

// Stage is one process of a plan.
type Stage struct {
	Argv         []string
	Redirections []syntax.Redirection
	// Builtin stages re-run the shell binary to execute the builtin.
	Builtin bool
	// Path skips executable lookup when set.
	Path string

	// StdinPipe and StdoutPipe index the pipes between stages.
	StdinPipe  int
	StdoutPipe int
}

// LaunchPlan describes how to run a pipeline.
type LaunchPlan struct {
	Stages []Stage
	// Pipes is the number of pipes joining the stages.
	Pipes int
	// InProcess plans run inside the shell and never fork.
	InProcess  bool
	Background bool
	Text       string
}

// Plan builds the launch plan for an expanded pipeline. Only a lone builtin
// in the foreground runs in-process so its changes to shell state stick;
// builtins anywhere else fork like any other command.
func Plan(p *syntax.Pipeline, isBuiltin func(string) bool, background bool) *LaunchPlan {
	n := len(p.Commands)
	plan := &LaunchPlan{
		Pipes:      n - 1,
		Background: background,
		Text:       p.Text,
	}

	for i, c := range p.Commands {
		stage := Stage{
			Argv:         c.Argv(),
			Redirections: c.Redirections,
			Builtin:      isBuiltin(c.Name()),
			StdinPipe:    NoPipe,
			StdoutPipe:   NoPipe,
		}
		if i > 0 {
			stage.StdinPipe = i - 1
		}
		if i < n-1 {
			stage.StdoutPipe = i
		}
		plan.Stages = append(plan.Stages, stage)
	}

	plan.InProcess = n == 1 && plan.Stages[0].Builtin && !background
	return plan
}

// Subshell plans running text in a child copy of the shell. It's used for
// and-or lists sent to the background as a whole.
func Subshell(self, text string) *LaunchPlan {
	return &LaunchPlan{
		Stages: []Stage{{
			Argv:       []string{self, "-c", text},
			Path:       self,
			StdinPipe:  NoPipe,
			StdoutPipe: NoPipe,
		}},
		Background: true,
		Text:       text,
	}
}
