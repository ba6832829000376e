// Package binding implements immutable variable binding sets.
//
// A Set is a chain of (variable, term) nodes linked to their parent. Extending a set allocates a
// single node that points at the original, so sibling sets derived from a common ancestor share
// all of the ancestor's bindings and the ancestor itself stays valid.
package binding

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/l7mp/triplestream/pkg/term"
)

type node struct {
	name   string
	value  term.Term
	parent *node
	len    int
}

// Set is an immutable mapping from variable names to terms. The zero value is the empty set.
type Set struct {
	n *node
}

// Empty returns the empty binding set.
func Empty() Set { return Set{} }

// FromMap builds a binding set from a map. Variables are added in sorted order.
func FromMap(m map[string]term.Term) Set {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	s := Empty()
	for _, k := range names {
		s = s.Extend(k, m[k])
	}
	return s
}

// Len returns the number of bound variables.
func (s Set) Len() int {
	if s.n == nil {
		return 0
	}
	return s.n.len
}

// IsEmpty returns true if no variable is bound.
func (s Set) IsEmpty() bool { return s.n == nil }

// Get returns the term bound to the variable, if any.
func (s Set) Get(name string) (term.Term, bool) {
	for n := s.n; n != nil; n = n.parent {
		if n.name == name {
			return n.value, true
		}
	}
	return term.Term{}, false
}

// Has returns true if the variable is bound.
func (s Set) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Extend returns a new set that binds name to value on top of s. Extending with a binding that
// is already present returns s. Rebinding a variable to a different value panics: callers must
// check consistency with Get first.
func (s Set) Extend(name string, value term.Term) Set {
	if old, ok := s.Get(name); ok {
		if old != value {
			panic(fmt.Sprintf("binding: variable ?%s already bound to %s, refusing to rebind to %s",
				name, old, value))
		}
		return s
	}
	return Set{n: &node{name: name, value: value, parent: s.n, len: s.Len() + 1}}
}

// Variables returns the bound variable names in sorted order.
func (s Set) Variables() []string {
	ret := make([]string, 0, s.Len())
	for n := s.n; n != nil; n = n.parent {
		ret = append(ret, n.name)
	}
	sort.Strings(ret)
	return ret
}

// Map returns the bindings as a freshly allocated map.
func (s Set) Map() map[string]term.Term {
	ret := make(map[string]term.Term, s.Len())
	for n := s.n; n != nil; n = n.parent {
		ret[n.name] = n.value
	}
	return ret
}

// Equal returns true if the two sets bind the same variables to the same terms, regardless of the
// order in which they were bound.
func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for n := s.n; n != nil; n = n.parent {
		v, ok := other.Get(n.name)
		if !ok || v != n.value {
			return false
		}
	}
	return true
}

// Extends returns true if s shares its whole chain with ancestor, i.e., s was obtained by
// extending ancestor.
func (s Set) Extends(ancestor Set) bool {
	for n := s.n; n != nil; n = n.parent {
		if n == ancestor.n {
			return true
		}
	}
	return ancestor.n == nil
}

// String renders the set as {x: <a>, y: "b"} with variables in sorted order.
func (s Set) String() string {
	m := s.Map()
	parts := make([]string, 0, len(m))
	for _, k := range s.Variables() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON renders the set as a JSON object mapping variable names to N-Triples terms.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
