package shell

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/launch"
)

// Completer offers command names for the first word of a command and paths
// everywhere else.
type Completer struct {
	Shell *Shell
}

// Do implements readline.AutoCompleter.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	before := string(line[:pos])
	start := strings.LastIndexAny(before, " \t|;&<>") + 1
	prefix := before[start:]

	var candidates []string
	if commandPosition(before[:start]) && !strings.Contains(prefix, "/") {
		candidates = c.commands(prefix)
	} else {
		candidates = c.paths(prefix)
	}

	out := make([][]rune, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, []rune(strings.TrimPrefix(cand, prefix)))
	}
	return out, len([]rune(prefix))
}

// commandPosition is true if the text before a word ends a command.
func commandPosition(before string) bool {
	trimmed := strings.TrimRight(before, " \t")
	return trimmed == "" || strings.ContainsAny(trimmed[len(trimmed)-1:], "|;&")
}

func (c *Completer) commands(prefix string) []string {
	s := c.Shell
	seen := make(map[string]bool)
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if strings.HasPrefix(n, prefix) && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}

	add(BuiltinNames())
	add(s.Aliases.Names())
	add(launch.Executables(s.Launcher.Fs, s.Env.Get(EnvPath)))
	sort.Strings(out)
	return out
}

func (c *Completer) paths(prefix string) []string {
	s := c.Shell
	dir, base := filepath.Split(prefix)

	search := dir
	switch {
	case strings.HasPrefix(dir, "~/"):
		search = filepath.Join(s.Env.Get(EnvHome), dir[2:])
	case dir == "":
		search = "."
	}

	entries, err := afero.ReadDir(s.Fs, s.resolve(search))
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, base) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		out = append(out, dir+name)
	}
	return out
}
