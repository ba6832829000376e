package ntriples

import (
	"errors"
	"fmt"
)

// A ParseError is returned for parsing errors. Lines and columns are 1-based, a zero column
// means the position within the line is unknown.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// These are the errors that can be wrapped in a ParseError.
var (
	ErrUnexpectedCharacter = errors.New("unexpected character")
	ErrUnexpectedEOF       = errors.New("unexpected end of input")
	ErrTermCount           = errors.New("wrong number of terms in statement")
	ErrUnterminatedIRI     = errors.New("unterminated IRI, expecting '>'")
	ErrUnterminatedLiteral = errors.New("unterminated literal, expecting '\"'")
	ErrUnterminatedTriple  = errors.New("unterminated triple, expecting '.'")
	ErrInvalidEscape       = errors.New("invalid escape sequence")
	ErrSyntax              = errors.New("invalid N-Triples statement")
	ErrTrailingInput       = errors.New("unexpected input after statement")
)
