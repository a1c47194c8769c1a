package syntax

import "strings"

// QuoteKind records how a piece of a word was written.
type QuoteKind int

const (
	// Unquoted text is subject to every expansion.
	Unquoted QuoteKind = iota
	// Double quoted text is subject to variable expansion only.
	Double
	// Single quoted text is never expanded.
	Single
	// Escaped text came from a backslash escape and is never expanded.
	Escaped
)

// WordPart is a run of text sharing a single QuoteKind.
type WordPart struct {
	Text  string
	Quote QuoteKind
}

// Word is a single argument as written on the command line.
type Word struct {
	Parts []WordPart
}

// LiteralWord creates a word that no expansion step will modify.
func LiteralWord(s string) Word {
	return Word{Parts: []WordPart{{Text: s, Quote: Single}}}
}

// Literal returns the text of the word with all quoting removed.
func (w Word) Literal() string {
	var sb strings.Builder
	for _, p := range w.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// IsUnquoted is true if no part of the word was quoted or escaped.
func (w Word) IsUnquoted() bool {
	for _, p := range w.Parts {
		if p.Quote != Unquoted {
			return false
		}
	}
	return true
}

func (w *Word) add(q QuoteKind, text string) {
	if n := len(w.Parts); n > 0 && w.Parts[n-1].Quote == q {
		w.Parts[n-1].Text += text
		return
	}
	w.Parts = append(w.Parts, WordPart{Text: text, Quote: q})
}

// TokenKind identifies a lexical unit.
type TokenKind int

const (
	TokWord TokenKind = iota
	TokPipe
	TokAnd
	TokOr
	TokSemi
	TokAmp
	TokRedirect
)

// Token is a lexical unit; Pos and End are byte offsets into the input.
type Token struct {
	Kind TokenKind
	Pos  int
	End  int
	Text string

	// Word is set for TokWord.
	Word Word

	// Redir and Fd are set for TokRedirect.
	Redir RedirKind
	Fd    int
}
