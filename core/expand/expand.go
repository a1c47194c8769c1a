// Package expand resolves aliases, variables, tildes and globs in parsed
// commands.
package expand

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/squish-sh/squish/core/env"
	"github.com/squish-sh/squish/core/syntax"
)

// maxAliasDepth bounds alias substitution even without a cycle.
const maxAliasDepth = 16

// ExpansionError is returned for malformed variable syntax.
type ExpansionError struct {
	Word string
	Msg  string
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Word, e.Msg)
}

// Expander expands commands against the shell's current state. The zero
// value is not usable, Env and Aliases must be set.
type Expander struct {
	Env     *env.Environment
	Aliases *env.Aliases

	// Fs and Dir are used for glob expansion, relative patterns are matched
	// against Dir.
	Fs  afero.Fs
	Dir string

	// LastStatus and Pid are substituted for $? and $$.
	LastStatus int
	Pid        int

	// LookupHome resolves ~name, defaulting to the user database.
	LookupHome func(name string) (string, bool)
}

// List expands every pipeline in the list.
func (e *Expander) List(list *syntax.CommandList) (*syntax.CommandList, error) {
	out := &syntax.CommandList{Source: list.Source}
	for _, item := range list.Items {
		pl, err := e.Pipeline(item.Pipeline)
		if err != nil {
			return nil, err
		}
		item.Pipeline = pl
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// Pipeline expands every command in the pipeline. The returned pipeline
// holds only literal words.
func (e *Expander) Pipeline(p *syntax.Pipeline) (*syntax.Pipeline, error) {
	out := &syntax.Pipeline{Pos: p.Pos, End: p.End, Text: p.Text}
	for _, c := range p.Commands {
		cmd, err := e.Command(c)
		if err != nil {
			return nil, err
		}
		if len(cmd.Args) == 0 && len(p.Commands) > 1 {
			return nil, &ExpansionError{Word: p.Text, Msg: "empty command in pipeline"}
		}
		out.Commands = append(out.Commands, cmd)
	}
	return out, nil
}

// Command expands a single command: aliases, then variables and tildes,
// then globs. Unquoted words that expand to nothing are dropped.
func (e *Expander) Command(c *syntax.Command) (*syntax.Command, error) {
	c, err := e.substituteAliases(c)
	if err != nil {
		return nil, err
	}

	out := &syntax.Command{}
	for _, w := range c.Args {
		fields, err := e.word(w, true)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			out.Args = append(out.Args, syntax.LiteralWord(f))
		}
	}

	for _, r := range c.Redirections {
		if r.Kind != syntax.RedirDup {
			fields, err := e.word(r.Target, false)
			if err != nil {
				return nil, err
			}
			if len(fields) != 1 || fields[0] == "" {
				return nil, &ExpansionError{Word: r.Target.Literal(), Msg: "ambiguous redirect"}
			}
			r.Target = syntax.LiteralWord(fields[0])
		}
		out.Redirections = append(out.Redirections, r)
	}

	return out, nil
}

// substituteAliases replaces the first word while it names an alias. A name
// already substituted once is left alone, which stops cycles.
func (e *Expander) substituteAliases(c *syntax.Command) (*syntax.Command, error) {
	if e.Aliases == nil {
		return c, nil
	}

	seen := make(map[string]bool)
	for depth := 0; depth < maxAliasDepth && len(c.Args) > 0; depth++ {
		first := c.Args[0]
		if !first.IsUnquoted() {
			break
		}
		name := first.Literal()
		value, ok := e.Aliases.Get(name)
		if !ok || seen[name] {
			break
		}
		seen[name] = true

		replacement, err := parseAlias(name, value)
		if err != nil {
			return nil, err
		}

		next := &syntax.Command{}
		next.Args = append(next.Args, replacement.Args...)
		next.Args = append(next.Args, c.Args[1:]...)
		next.Redirections = append(next.Redirections, replacement.Redirections...)
		next.Redirections = append(next.Redirections, c.Redirections...)
		c = next
	}

	return c, nil
}

func parseAlias(name, value string) (*syntax.Command, error) {
	list, err := syntax.Parse(value)
	if err != nil {
		return nil, &ExpansionError{Word: name, Msg: fmt.Sprintf("bad alias: %v", err)}
	}
	if list.Empty() {
		return &syntax.Command{}, nil
	}
	if len(list.Items) != 1 || list.Items[0].Background || len(list.Items[0].Pipeline.Commands) != 1 {
		return nil, &ExpansionError{Word: name, Msg: "alias must expand to a simple command"}
	}
	return list.Items[0].Pipeline.Commands[0], nil
}

// segment is a run of expanded text; quoted segments are never globbed.
type segment struct {
	text   string
	quoted bool
}

// word expands one word into zero or more fields.
func (e *Expander) word(w syntax.Word, glob bool) ([]string, error) {
	parts := e.tilde(w.Parts)

	var segs []segment
	hasQuotes := false
	for _, p := range parts {
		switch p.Quote {
		case syntax.Single, syntax.Escaped:
			hasQuotes = true
			segs = append(segs, segment{text: p.Text, quoted: true})
		case syntax.Double:
			hasQuotes = true
			text, err := e.variables(w, p.Text)
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{text: text, quoted: true})
		default:
			text, err := e.variables(w, p.Text)
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{text: text})
		}
	}

	var literal strings.Builder
	for _, s := range segs {
		literal.WriteString(s.text)
	}

	if !hasQuotes && literal.Len() == 0 {
		return nil, nil
	}

	if glob {
		if matches := e.glob(segs); len(matches) > 0 {
			return matches, nil
		}
	}

	return []string{literal.String()}, nil
}

// tilde expands a leading unquoted ~ or ~name up to the first slash.
func (e *Expander) tilde(parts []syntax.WordPart) []syntax.WordPart {
	if len(parts) == 0 || parts[0].Quote != syntax.Unquoted || !strings.HasPrefix(parts[0].Text, "~") {
		return parts
	}

	text := parts[0].Text
	prefix, rest := text, ""
	if idx := strings.IndexByte(text, '/'); idx >= 0 {
		prefix, rest = text[:idx], text[idx:]
	}
	// ~name followed by a quoted part isn't a tilde prefix.
	if rest == "" && len(parts) > 1 && prefix != "~" {
		return parts
	}

	var home string
	if prefix == "~" {
		var ok bool
		if home, ok = e.Env.Lookup("HOME"); !ok {
			return parts
		}
	} else {
		var ok bool
		if home, ok = e.lookupHome(prefix[1:]); !ok {
			return parts
		}
	}

	out := []syntax.WordPart{{Text: home, Quote: syntax.Single}}
	if rest != "" {
		out = append(out, syntax.WordPart{Text: rest, Quote: syntax.Unquoted})
	}
	return append(out, parts[1:]...)
}

func (e *Expander) lookupHome(name string) (string, bool) {
	if e.LookupHome != nil {
		return e.LookupHome(name)
	}
	u, err := user.Lookup(name)
	if err != nil {
		return "", false
	}
	return u.HomeDir, true
}

// variables substitutes $NAME, ${NAME}, $? and $$ in text.
func (e *Expander) variables(w syntax.Word, text string) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}

	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' || i+1 >= len(text) {
			sb.WriteByte(c)
			continue
		}

		next := text[i+1]
		switch {
		case next == '?':
			sb.WriteString(strconv.Itoa(e.LastStatus))
			i++

		case next == '$':
			sb.WriteString(strconv.Itoa(e.Pid))
			i++

		case next == '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				return "", &ExpansionError{Word: w.Literal(), Msg: "missing closing brace"}
			}
			name := text[i+2 : i+2+end]
			switch {
			case name == "?":
				sb.WriteString(strconv.Itoa(e.LastStatus))
			case name == "$":
				sb.WriteString(strconv.Itoa(e.Pid))
			case env.ValidName(name):
				sb.WriteString(e.Env.Get(name))
			default:
				return "", &ExpansionError{Word: w.Literal(), Msg: "bad substitution"}
			}
			i += 2 + end

		case isNameStart(next):
			j := i + 1
			for j < len(text) && isNameChar(text[j]) {
				j++
			}
			sb.WriteString(e.Env.Get(text[i+1 : j]))
			i = j - 1

		default:
			sb.WriteByte(c)
		}
	}

	return sb.String(), nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
