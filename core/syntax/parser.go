package syntax

import "strconv"

type parser struct {
	src  string
	toks []Token
	i    int
}

// Parse parses a line of input into a CommandList. A blank line or a line
// holding only a comment produces an empty list.
func Parse(line string) (*CommandList, error) {
	toks, err := Lex(line)
	if err != nil {
		return nil, err
	}

	p := &parser{src: line, toks: toks}
	list := &CommandList{Source: line}

	for !p.eof() {
		pl, err := p.pipeline()
		if err != nil {
			return nil, err
		}

		item := Item{Pipeline: pl}
		if p.eof() {
			list.Items = append(list.Items, item)
			break
		}

		tok := p.next()
		switch tok.Kind {
		case TokAnd:
			item.Op = OpAnd
		case TokOr:
			item.Op = OpOr
		case TokSemi:
			item.Op = OpSeq
		case TokAmp:
			item.Op = OpSeq
			item.Background = true
			// The whole and-or chain ending here runs in the background.
			for j := len(list.Items) - 1; j >= 0; j-- {
				if op := list.Items[j].Op; op != OpAnd && op != OpOr {
					break
				}
				list.Items[j].Background = true
			}
		default:
			return nil, errorf(tok.Pos, "unexpected token %q", tok.Text)
		}

		if p.eof() {
			if item.Op == OpAnd || item.Op == OpOr {
				return nil, errorf(tok.End, "expected command after %q", tok.Text)
			}
			item.Op = OpNone
		}
		list.Items = append(list.Items, item)
	}

	return list, nil
}

func (p *parser) eof() bool {
	return p.i >= len(p.toks)
}

func (p *parser) peek() Token {
	return p.toks[p.i]
}

func (p *parser) next() Token {
	tok := p.toks[p.i]
	p.i++
	return tok
}

func (p *parser) pipeline() (*Pipeline, error) {
	pl := &Pipeline{Pos: -1}

	for {
		cmd, pos, end, err := p.command()
		if err != nil {
			return nil, err
		}
		if pl.Pos < 0 {
			pl.Pos = pos
		}
		pl.End = end
		pl.Commands = append(pl.Commands, cmd)

		if p.eof() || p.peek().Kind != TokPipe {
			break
		}

		pipe := p.next()
		if p.eof() {
			return nil, errorf(pipe.End, "expected command after %q", pipe.Text)
		}
	}

	pl.Text = p.src[pl.Pos:pl.End]
	return pl, nil
}

func (p *parser) command() (cmd *Command, pos, end int, err error) {
	cmd = &Command{}
	pos = -1

	for !p.eof() {
		tok := p.peek()
		switch tok.Kind {
		case TokWord:
			p.next()
			cmd.Args = append(cmd.Args, tok.Word)
		case TokRedirect:
			p.next()
			redir, rerr := p.redirection(tok)
			if rerr != nil {
				return nil, 0, 0, rerr
			}
			cmd.Redirections = append(cmd.Redirections, redir)
			end = p.toks[p.i-1].End
		default:
			if pos < 0 {
				return nil, 0, 0, errorf(tok.Pos, "unexpected token %q", tok.Text)
			}
			return cmd, pos, end, p.checkCommand(cmd, pos)
		}

		if pos < 0 {
			pos = tok.Pos
		}
		end = p.toks[p.i-1].End
	}

	if pos < 0 {
		return nil, 0, 0, errorf(len(p.src), "expected command")
	}
	return cmd, pos, end, p.checkCommand(cmd, pos)
}

func (p *parser) checkCommand(cmd *Command, pos int) error {
	if len(cmd.Args) == 0 {
		return errorf(pos, "missing command name")
	}
	return nil
}

func (p *parser) redirection(op Token) (Redirection, error) {
	if p.eof() || p.peek().Kind != TokWord {
		return Redirection{}, errorf(op.End, "expected target after %q", op.Text)
	}

	target := p.next()
	redir := Redirection{Kind: op.Redir, Fd: op.Fd, Target: target.Word}

	if op.Redir == RedirDup {
		n, err := strconv.Atoi(target.Word.Literal())
		if err != nil || n < 0 || n > MaxFd {
			return Redirection{}, errorf(target.Pos, "bad file descriptor %q", target.Text)
		}
		redir.TargetFd = n
	}

	return redir, nil
}
