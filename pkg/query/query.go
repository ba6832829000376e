// Package query defines graph pattern queries: ordered conjunctions of triple patterns.
//
// Queries are validated when they are built, so the matching engine can assume that every
// pattern it receives is well formed.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/l7mp/triplestream/pkg/ntriples"
	"github.com/l7mp/triplestream/pkg/pattern"
)

// ErrInvalidQuery is returned for queries that cannot be registered.
var ErrInvalidQuery = errors.New("invalid query")

// Query is a graph pattern: an ordered list of triple patterns that must all be matched.
type Query struct {
	Name     string
	Patterns []pattern.Pattern
}

// New creates a validated query from a list of patterns.
func New(name string, patterns ...pattern.Pattern) (*Query, error) {
	q := &Query{Name: name, Patterns: patterns}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the preconditions the engine relies on: the graph pattern is non-empty and
// every pattern is well formed.
func (q *Query) Validate() error {
	if len(q.Patterns) == 0 {
		return fmt.Errorf("%w %q: empty graph pattern", ErrInvalidQuery, q.Name)
	}
	for i := range q.Patterns {
		if err := q.Patterns[i].Validate(); err != nil {
			return fmt.Errorf("%w %q: pattern %d: %w", ErrInvalidQuery, q.Name, i, err)
		}
	}
	return nil
}

// Variables returns the distinct variables of the query in order of first appearance.
func (q *Query) Variables() []string {
	ret := []string{}
	seen := map[string]bool{}
	for i := range q.Patterns {
		for _, v := range q.Patterns[i].Variables() {
			if !seen[v] {
				seen[v] = true
				ret = append(ret, v)
			}
		}
	}
	return ret
}

// String renders the query in the syntax accepted by Parse.
func (q *Query) String() string {
	parts := make([]string, len(q.Patterns))
	for i, p := range q.Patterns {
		parts[i] = p.String() + " ."
	}
	return strings.Join(parts, " ")
}

// Parse reads a graph pattern written as N-Triples statements where any term may be replaced by
// a ?variable, e.g.:
//
//	?x <http://ex.org/type> <http://ex.org/Person> .
//	?x <http://ex.org/name> ?n .
//
// The final dot is optional.
func Parse(name, src string) (*Query, error) {
	l := ntriples.NewLexer(src)
	patterns := []pattern.Pattern{}
	slots := []pattern.Slot{}

	for {
		tok, err := l.Next()
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidQuery, name, err)
		}

		switch tok.Kind {
		case ntriples.TokenTerm:
			slots = append(slots, pattern.Const(tok.Term))
		case ntriples.TokenVariable:
			slots = append(slots, pattern.Var(tok.Variable))
		case ntriples.TokenDot, ntriples.TokenEOF:
			if tok.Kind == ntriples.TokenEOF && len(slots) == 0 {
				return New(name, patterns...)
			}
			if len(slots) != 3 {
				return nil, fmt.Errorf("%w %q: %w", ErrInvalidQuery, name, &ntriples.ParseError{
					Line: tok.Line, Column: tok.Column, Err: ntriples.ErrTermCount})
			}
			patterns = append(patterns, pattern.New(slots[0], slots[1], slots[2]))
			slots = slots[:0]
			if tok.Kind == ntriples.TokenEOF {
				return New(name, patterns...)
			}
		}

		if len(slots) > 3 {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidQuery, name, &ntriples.ParseError{
				Line: tok.Line, Column: tok.Column, Err: ntriples.ErrTermCount})
		}
	}
}

// MustParse is like Parse but panics on error. Meant for tests and static queries.
func MustParse(name, src string) *Query {
	q, err := Parse(name, src)
	if err != nil {
		panic(err)
	}
	return q
}
