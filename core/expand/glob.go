package expand

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/pattern"
)

// glob returns the sorted matches for the word, or nil if the word has no
// unquoted pattern characters or matches nothing.
func (e *Expander) glob(segs []segment) []string {
	if e.Fs == nil {
		return nil
	}

	var pat strings.Builder
	active := false
	for _, s := range segs {
		if s.quoted {
			pat.WriteString(pattern.QuoteMeta(s.text, 0))
			continue
		}
		if pattern.HasMeta(s.text, 0) {
			active = true
		}
		pat.WriteString(s.text)
	}
	if !active {
		return nil
	}

	expr := pat.String()
	search := expr
	relative := !filepath.IsAbs(expr) && e.Dir != ""
	if relative {
		search = filepath.Join(e.Dir, expr)
	}

	matches, err := afero.Glob(e.Fs, search)
	if err != nil {
		return nil
	}

	var out []string
	for _, m := range matches {
		if relative {
			rel, err := filepath.Rel(e.Dir, m)
			if err != nil {
				continue
			}
			m = rel
		}
		if hidesDotfile(expr, m) {
			continue
		}
		out = append(out, m)
	}

	sort.Strings(out)
	return out
}

// hidesDotfile reports whether match has a dot-prefixed name that was only
// matched by a wildcard. Patterns must spell out a leading dot to match it.
func hidesDotfile(expr, match string) bool {
	patParts := strings.Split(filepath.Clean(expr), "/")
	matchParts := strings.Split(filepath.Clean(match), "/")
	if len(patParts) != len(matchParts) {
		return false
	}

	for i, name := range matchParts {
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(patParts[i], ".") {
			return true
		}
	}
	return false
}
