package syntax

import "fmt"

// SyntaxError is returned for input that can't be parsed.
type SyntaxError struct {
	// Pos is the byte offset of the problem in the input.
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at column %d: %s", e.Pos+1, e.Msg)
}

func errorf(pos int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
