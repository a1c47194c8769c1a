package syntax

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// operators ordered so longer operators match first.
var operators = []struct {
	text  string
	kind  TokenKind
	redir RedirKind
	fd    int
}{
	{"&&", TokAnd, 0, 0},
	{"||", TokOr, 0, 0},
	{">>", TokRedirect, RedirAppend, 1},
	{">&", TokRedirect, RedirDup, 1},
	{"<&", TokRedirect, RedirDup, 0},
	{"|", TokPipe, 0, 0},
	{"&", TokAmp, 0, 0},
	{";", TokSemi, 0, 0},
	{"<", TokRedirect, RedirIn, 0},
	{">", TokRedirect, RedirOut, 1},
}

type lexer struct {
	src    string
	pos    int
	tokens []Token

	inWord    bool
	wordStart int
	word      Word
}

// Lex splits the input into tokens.
func Lex(src string) ([]Token, error) {
	l := &lexer{src: src}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.endWord()
			l.pos++

		case c == '#' && !l.inWord:
			// Comment runs to the end of the line.
			l.pos = len(l.src)

		case c == '\'':
			l.beginWord()
			end := strings.IndexByte(l.src[l.pos+1:], '\'')
			if end < 0 {
				return errorf(l.pos, "unterminated single quote")
			}
			l.word.add(Single, l.src[l.pos+1:l.pos+1+end])
			l.pos += end + 2

		case c == '"':
			if err := l.lexDouble(); err != nil {
				return err
			}

		case c == '\\':
			if l.pos+1 >= len(l.src) {
				return errorf(l.pos, "unexpected end of input after backslash")
			}
			l.beginWord()
			_, size := utf8.DecodeRuneInString(l.src[l.pos+1:])
			l.word.add(Escaped, l.src[l.pos+1:l.pos+1+size])
			l.pos += 1 + size

		case strings.IndexByte("|&;<>", c) >= 0:
			if err := l.lexOperator(); err != nil {
				return err
			}

		default:
			l.beginWord()
			l.word.add(Unquoted, l.src[l.pos:l.pos+1])
			l.pos++
		}
	}

	l.endWord()
	return nil
}

// lexDouble reads a double quoted string. Inside, a backslash only escapes
// characters that would otherwise be special.
func (l *lexer) lexDouble() error {
	start := l.pos
	l.beginWord()

	var sb strings.Builder
	flush := func() {
		l.word.add(Double, sb.String())
		sb.Reset()
	}

	for i := l.pos + 1; i < len(l.src); i++ {
		c := l.src[i]
		switch {
		case c == '"':
			flush()
			l.pos = i + 1
			return nil
		case c == '\\' && i+1 < len(l.src) && strings.IndexByte("$`\"\\\n", l.src[i+1]) >= 0:
			flush()
			l.word.add(Escaped, l.src[i+1:i+2])
			i++
		default:
			sb.WriteByte(c)
		}
	}

	return errorf(start, "unterminated double quote")
}

func (l *lexer) lexOperator() error {
	c := l.src[l.pos]

	// An unquoted run of digits directly before a redirection names the fd.
	ioNumber := -1
	if (c == '<' || c == '>') && l.inWord && l.word.IsUnquoted() && isDigits(l.word.Literal()) {
		n, err := strconv.Atoi(l.word.Literal())
		if err != nil || n > MaxFd {
			return errorf(l.wordStart, "bad file descriptor %q", l.word.Literal())
		}
		ioNumber = n
	}

	start := l.pos
	if ioNumber >= 0 {
		start = l.wordStart
		l.inWord = false
		l.word = Word{}
	} else {
		l.endWord()
	}

	for _, op := range operators {
		if !strings.HasPrefix(l.src[l.pos:], op.text) {
			continue
		}

		l.pos += len(op.text)
		tok := Token{
			Kind:  op.kind,
			Pos:   start,
			End:   l.pos,
			Text:  l.src[start:l.pos],
			Redir: op.redir,
			Fd:    op.fd,
		}
		if ioNumber >= 0 {
			tok.Fd = ioNumber
		}
		l.tokens = append(l.tokens, tok)
		return nil
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (l *lexer) beginWord() {
	if !l.inWord {
		l.inWord = true
		l.wordStart = l.pos
	}
}

func (l *lexer) endWord() {
	if !l.inWord {
		return
	}
	l.tokens = append(l.tokens, Token{
		Kind: TokWord,
		Pos:  l.wordStart,
		End:  l.pos,
		Text: l.src[l.wordStart:l.pos],
		Word: l.word,
	})
	l.inWord = false
	l.word = Word{}
}
