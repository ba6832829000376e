package term

import "fmt"

// Position selects one component of a triple.
type Position uint8

const (
	Subject Position = iota
	Predicate
	Object
)

// Positions lists the triple positions in order.
var Positions = [3]Position{Subject, Predicate, Object}

func (p Position) String() string {
	switch p {
	case Subject:
		return "subject"
	case Predicate:
		return "predicate"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("position(%d)", uint8(p))
	}
}

// Triple is a ground (subject, predicate, object) statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// NewTriple returns a new triple.
func NewTriple(s, p, o Term) Triple {
	return Triple{Subject: s, Predicate: p, Object: o}
}

// Get returns the component of the triple at the given position.
func (t Triple) Get(pos Position) Term {
	switch pos {
	case Subject:
		return t.Subject
	case Predicate:
		return t.Predicate
	default:
		return t.Object
	}
}

// Valid returns an error if any of the components is the zero term.
func (t Triple) Valid() error {
	for _, pos := range Positions {
		if t.Get(pos).IsZero() {
			return fmt.Errorf("invalid triple %s: empty %s", t, pos)
		}
	}
	return nil
}

// String returns the N-Triples line for the triple, including the final dot.
func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}
