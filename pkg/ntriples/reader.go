// Package ntriples reads N-Triples documents and lexes the closely related triple pattern syntax
// used in queries.
//
// Data statements are decoded with github.com/knakk/rdf; the Lexer only serves the pattern syntax,
// which extends N-Triples with ?name and $name variables.
package ntriples

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/knakk/rdf"

	"github.com/l7mp/triplestream/pkg/term"
)

const xsdString = "http://www.w3.org/2001/XMLSchema#string"

// Reader reads triples from an N-Triples stream, one statement per line.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader returns a new Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next triple. Blank lines and comments are skipped. A malformed statement
// yields a *ParseError, after which reading can continue with the next line. At the end of the
// stream it returns io.EOF.
func (r *Reader) Read() (term.Triple, error) {
	for {
		line, err := r.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return term.Triple{}, err
		}
		if line == "" && err != nil {
			return term.Triple{}, io.EOF
		}
		r.line++

		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if err != nil {
				return term.Triple{}, io.EOF
			}
			continue
		}

		return ParseTriple(line, r.line)
	}
}

// ReadAll reads all remaining triples.
func (r *Reader) ReadAll() ([]term.Triple, error) {
	ret := []term.Triple{}
	for {
		t, err := r.Read()
		if errors.Is(err, io.EOF) {
			return ret, nil
		}
		if err != nil {
			return ret, err
		}
		ret = append(ret, t)
	}
}

// ParseTriple parses a single N-Triples statement. The line number is used for error reporting.
func ParseTriple(src string, line int) (term.Triple, error) {
	dec := rdf.NewTripleDecoder(strings.NewReader(src), rdf.NTriples)

	t, err := dec.Decode()
	if errors.Is(err, io.EOF) {
		return term.Triple{}, &ParseError{Line: line, Err: ErrUnexpectedEOF}
	}
	if err != nil {
		return term.Triple{}, &ParseError{Line: line, Err: fmt.Errorf("%w: %s", ErrSyntax, err)}
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		return term.Triple{}, &ParseError{Line: line, Err: ErrTrailingInput}
	}

	var terms [3]term.Term
	for i, rt := range []rdf.Term{t.Subj, t.Pred, t.Obj} {
		tt, err := convert(rt)
		if err != nil {
			return term.Triple{}, &ParseError{Line: line, Err: err}
		}
		terms[i] = tt
	}

	return term.NewTriple(terms[0], terms[1], terms[2]), nil
}

// convert maps a decoded RDF term to a term.Term.
func convert(t rdf.Term) (term.Term, error) {
	switch v := t.(type) {
	case rdf.IRI:
		return term.NewIRI(v.String()), nil
	case rdf.Blank:
		return term.NewBlank(strings.TrimPrefix(v.String(), "_:")), nil
	case rdf.Literal:
		if lang := v.Lang(); lang != "" {
			return term.NewLangLiteral(v.String(), lang), nil
		}
		if dt := v.DataType.String(); dt != "" && dt != xsdString {
			return term.NewTypedLiteral(v.String(), dt), nil
		}
		return term.NewLiteral(v.String()), nil
	default:
		return term.Term{}, fmt.Errorf("%w: unsupported term %v", ErrSyntax, t)
	}
}
