package pipeline

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every ParseError via errors.Is.
var ErrParse = errors.New("parse error")

// ParseError reports a document that could not be turned into a tree.
// Line and Column are 1-based and zero when unknown.
type ParseError struct {
	Source string
	Line   int
	Column int
	Msg    string
	Err    error // underlying yaml error, if any
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if loc == "" {
		return fmt.Sprintf("%s: %s", ErrParse.Error(), msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrParse.Error(), loc, msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}
