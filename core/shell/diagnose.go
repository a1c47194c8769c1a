package shell

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/squish-sh/squish/core/launch"
)

const (
	maxSuggestionDistance = 2
	maxSuggestions        = 3
)

var colorSuggestion = color.New(color.FgCyan)

// launchFailed reports a stage that didn't start. Unknown commands get
// suggestions for similar names.
func (s *Shell) launchFailed(lerr *launch.LaunchError) {
	s.errorf("%v", lerr)
	if !errors.Is(lerr, launch.ErrNotFound) {
		return
	}

	path := s.Env.Get(EnvPath)
	if path == "" {
		fmt.Fprintln(s.Stderr, "PATH is not set.")
		return
	}

	if matches := s.Suggest(lerr.Name); len(matches) > 0 {
		fmt.Fprintf(s.Stderr, "Did you mean: %s?\n", colorSuggestion.Sprint(strings.Join(matches, ", ")))
	}
}

// Suggest lists builtins, aliases and executables close to name.
func (s *Shell) Suggest(name string) []string {
	type match struct {
		name     string
		distance int
	}

	seen := make(map[string]bool)
	var matches []match
	consider := func(names []string) {
		for _, n := range names {
			if seen[n] || n == name {
				continue
			}
			seen[n] = true
			if d := fuzzy.LevenshteinDistance(name, n); d <= maxSuggestionDistance {
				matches = append(matches, match{n, d})
			}
		}
	}

	consider(BuiltinNames())
	consider(s.Aliases.Names())
	consider(launch.Executables(s.Launcher.Fs, s.Env.Get(EnvPath)))

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].name < matches[j].name
	})

	var out []string
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}
