package syntax

import (
	"fmt"
	"strings"
)

// RedirKind is the type of a Redirection.
type RedirKind int

const (
	RedirIn RedirKind = iota
	RedirOut
	RedirAppend
	RedirDup
)

func (k RedirKind) String() string {
	switch k {
	case RedirIn:
		return "<"
	case RedirOut:
		return ">"
	case RedirAppend:
		return ">>"
	case RedirDup:
		return ">&"
	default:
		return fmt.Sprintf("RedirKind(%d)", int(k))
	}
}

// MaxFd is the highest descriptor a redirection may name.
const MaxFd = 255

// Redirection rebinds Fd in the child before it runs.
type Redirection struct {
	Kind RedirKind
	Fd   int

	// Target is the file for In, Out and Append.
	Target Word
	// TargetFd is the descriptor copied for Dup.
	TargetFd int
}

// Command is a simple command: arguments plus redirections.
type Command struct {
	Args         []Word
	Redirections []Redirection
}

// Name is the literal first argument, or "" for an empty command.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0].Literal()
}

// Argv returns the literal text of every argument.
func (c *Command) Argv() []string {
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = a.Literal()
	}
	return out
}

// Pipeline is one or more commands joined by pipes.
type Pipeline struct {
	Commands []*Command

	// Pos and End delimit the pipeline in the source line.
	Pos  int
	End  int
	Text string
}

// Op is the operator that follows a pipeline in a CommandList.
type Op int

const (
	OpNone Op = iota
	OpAnd
	OpOr
	OpSeq
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return ""
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpSeq:
		return ";"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Item is a pipeline and the operator after it.
type Item struct {
	Pipeline   *Pipeline
	Op         Op
	Background bool
}

// CommandList is the result of parsing a line.
type CommandList struct {
	Source string
	Items  []Item
}

// Empty is true if the line held no commands.
func (l *CommandList) Empty() bool {
	return len(l.Items) == 0
}

// Chain is a run of pipelines joined by && and ||. A backgrounded chain runs
// as a single job.
type Chain struct {
	Items      []Item
	Background bool
	Text       string
}

// Chains groups the list into and-or chains in textual order.
func (l *CommandList) Chains() []Chain {
	var out []Chain
	var cur []Item

	for _, item := range l.Items {
		cur = append(cur, item)
		if item.Op == OpAnd || item.Op == OpOr {
			continue
		}

		first, last := cur[0].Pipeline, cur[len(cur)-1].Pipeline
		text := strings.TrimSpace(l.Source[first.Pos:last.End])
		out = append(out, Chain{Items: cur, Background: item.Background, Text: text})
		cur = nil
	}

	return out
}
