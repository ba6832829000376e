// Package term defines the atomic values carried by the triple stream.
package term

import (
	"fmt"
	"strings"
)

// Kind is the type of a term.
type Kind uint8

const (
	// Invalid is the kind of the zero Term.
	Invalid Kind = iota
	IRI
	Literal
	Blank
)

func (k Kind) String() string {
	switch k {
	case IRI:
		return "iri"
	case Literal:
		return "literal"
	case Blank:
		return "blank"
	default:
		return "invalid"
	}
}

// Term is an atomic value: an IRI, a literal or a blank node. Terms are comparable, two terms are
// equal iff they are == equal.
type Term struct {
	Kind     Kind
	Value    string
	Language string
	Datatype string
}

// NewIRI returns an IRI term.
func NewIRI(iri string) Term { return Term{Kind: IRI, Value: iri} }

// NewLiteral returns a plain literal.
func NewLiteral(value string) Term { return Term{Kind: Literal, Value: value} }

// NewLangLiteral returns a literal with a language tag.
func NewLangLiteral(value, lang string) Term {
	return Term{Kind: Literal, Value: value, Language: lang}
}

// NewTypedLiteral returns a literal with a datatype IRI.
func NewTypedLiteral(value, datatype string) Term {
	return Term{Kind: Literal, Value: value, Datatype: datatype}
}

// NewBlank returns a blank node with the given label.
func NewBlank(id string) Term { return Term{Kind: Blank, Value: id} }

// IsZero returns true for the zero Term.
func (t Term) IsZero() bool { return t.Kind == Invalid }

// String returns the N-Triples representation of the term.
func (t Term) String() string {
	switch t.Kind {
	case IRI:
		return "<" + t.Value + ">"
	case Blank:
		return "_:" + t.Value
	case Literal:
		s := `"` + escape(t.Value) + `"`
		if t.Language != "" {
			return s + "@" + t.Language
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return "<invalid>"
	}
}

// MarshalText renders the term in N-Triples syntax, so that terms print nicely as JSON values.
func (t Term) MarshalText() ([]byte, error) {
	if t.Kind == Invalid {
		return nil, fmt.Errorf("cannot marshal invalid term")
	}
	return []byte(t.String()), nil
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func escape(s string) string { return escaper.Replace(s) }
