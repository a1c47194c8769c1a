package shell

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/squish-sh/squish/core/job"
	"github.com/squish-sh/squish/core/syntax"
)

var colorTiming = color.New(color.FgYellow)

// timePrefix strips a leading unquoted time from a pipeline.
func timePrefix(p *syntax.Pipeline) (*syntax.Pipeline, bool) {
	if len(p.Commands) == 0 || len(p.Commands[0].Args) == 0 {
		return nil, false
	}
	first := p.Commands[0]
	if !first.Args[0].IsUnquoted() || first.Args[0].Literal() != "time" {
		return nil, false
	}

	rest := *p
	rest.Commands = append([]*syntax.Command{{
		Args:         first.Args[1:],
		Redirections: first.Redirections,
	}}, p.Commands[1:]...)
	return &rest, true
}

// timePipeline runs a pipeline and reports how long it took.
func (s *Shell) timePipeline(p *syntax.Pipeline, background bool) (int, *job.Job) {
	if len(p.Commands) == 1 && len(p.Commands[0].Args) == 0 && len(p.Commands[0].Redirections) == 0 {
		writeTimes(s.Stderr, 0, 0, 0)
		return 0, nil
	}

	start := s.clock()
	status, j := s.runPipeline(p, background)
	if background {
		return status, j
	}

	var user, sys time.Duration
	if j != nil {
		user, sys = j.User, j.Sys
	}
	writeTimes(s.Stderr, s.clock().Sub(start), user, sys)
	return status, j
}

// Time runs its arguments as a command and reports how long it took.
func Time(s *Shell, stdio Stdio, args []string) int {
	if len(args) == 1 {
		writeTimes(stdio.Err, 0, 0, 0)
		return 0
	}

	cmd := &syntax.Command{}
	for _, a := range args[1:] {
		cmd.Args = append(cmd.Args, syntax.LiteralWord(a))
	}
	p := &syntax.Pipeline{Commands: []*syntax.Command{cmd}}
	for i, a := range args[1:] {
		if i > 0 {
			p.Text += " "
		}
		p.Text += a
	}

	start := s.clock()
	status, j := s.runPipeline(p, false)

	var user, sys time.Duration
	if j != nil {
		user, sys = j.User, j.Sys
	}
	writeTimes(stdio.Err, s.clock().Sub(start), user, sys)
	return status
}

func writeTimes(w io.Writer, real, user, sys time.Duration) {
	cpu := 0.0
	if real > 0 {
		cpu = float64(user+sys) / float64(real) * 100
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "real\t%s\n", formatDuration(real))
	fmt.Fprintf(w, "user\t%s\n", formatDuration(user))
	fmt.Fprintf(w, "sys\t%s\n", formatDuration(sys))
	fmt.Fprintf(w, "cpu\t%.0f%%\n", cpu)
}

// formatDuration renders d as minutes and seconds, like 1m2.345s.
func formatDuration(d time.Duration) string {
	minutes := int(d / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%dm%.3fs", minutes, seconds)
}

// reportTiming prints the elapsed time of a foreground command when
// show_timing is on and it ran past the threshold.
func (s *Shell) reportTiming(elapsed time.Duration) {
	if s.Config == nil || !s.Config.ShowTiming {
		return
	}
	threshold := time.Duration(s.Config.TimingThresholdMs) * time.Millisecond
	if elapsed < threshold {
		return
	}
	fmt.Fprintln(s.Stderr, colorTiming.Sprintf("took %s", elapsed.Round(time.Millisecond)))
}
