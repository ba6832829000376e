package testutils

import (
	"github.com/l7mp/triplestream/pkg/term"
)

const ns = "http://example.org/"

// IRI returns a term in the test namespace.
func IRI(local string) term.Term { return term.NewIRI(ns + local) }

var (
	// Type, Name, Knows and Person are the vocabulary used across the tests.
	Type   = IRI("type")
	Name   = IRI("name")
	Knows  = IRI("knows")
	Person = IRI("Person")

	A1 = IRI("a1")
	A2 = IRI("a2")
	A3 = IRI("a3")

	Alice = term.NewLiteral("Alice")
	Bob   = term.NewLiteral("Bob")

	// PersonQuery selects the name of every person.
	PersonQuery = `
		?x <http://example.org/type> <http://example.org/Person> .
		?x <http://example.org/name> ?n .`

	// KnowsQuery selects pairs of people who know each other.
	KnowsQuery = `
		?x <http://example.org/knows> ?y .
		?y <http://example.org/knows> ?x .`
)

// TypeTriple returns "s type Person".
func TypeTriple(s term.Term) term.Triple { return term.NewTriple(s, Type, Person) }

// NameTriple returns "s name n".
func NameTriple(s, n term.Term) term.Triple { return term.NewTriple(s, Name, n) }

// KnowsTriple returns "s knows o".
func KnowsTriple(s, o term.Term) term.Triple { return term.NewTriple(s, Knows, o) }
