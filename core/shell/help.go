package shell

import (
	"fmt"
	"strings"

	"github.com/squish-sh/squish/core/syntax"
)

// Help describes the builtins, or asks an external command for its help.
func Help(s *Shell, stdio Stdio, args []string) int {
	w := stdio.Out

	if len(args) == 1 {
		fmt.Fprintln(w, "squish, an interactive shell with job control.")
		fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
		fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
		fmt.Fprintln(w)

		for _, b := range builtins {
			fmt.Fprintf(w, "  %-30s %s\n", b.Usage, b.Short)
		}
		return 0
	}

	status := 0
	for _, name := range args[1:] {
		b, ok := byName[name]
		if !ok {
			status = s.externalHelp(name)
			continue
		}

		fmt.Fprintf(w, "%s: %s\n", b.Name, b.Usage)
		fmt.Fprintf(w, "    %s\n", b.Short)
		if b.Long != "" {
			fmt.Fprintln(w)
			for _, line := range strings.Split(b.Long, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	return status
}

// externalHelp runs name --help as a foreground job.
func (s *Shell) externalHelp(name string) int {
	cmd := &syntax.Command{Args: []syntax.Word{
		syntax.LiteralWord(name),
		syntax.LiteralWord("--help"),
	}}
	status, _ := s.runPipeline(&syntax.Pipeline{
		Commands: []*syntax.Command{cmd},
		Text:     name + " --help",
	}, false)
	return status
}
