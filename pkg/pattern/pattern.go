// Package pattern implements triple patterns and their unification against ground triples.
package pattern

import (
	"fmt"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/term"
)

// Slot is one position of a triple pattern: either a constant term or a named variable.
type Slot struct {
	variable string
	constant term.Term
}

// Const returns a constant slot.
func Const(t term.Term) Slot { return Slot{constant: t} }

// Var returns a variable slot. The name is given without the leading '?'.
func Var(name string) Slot { return Slot{variable: name} }

// IsVar returns true for variable slots.
func (s Slot) IsVar() bool { return s.variable != "" }

// Variable returns the variable name of the slot, or "" for a constant.
func (s Slot) Variable() string { return s.variable }

// Constant returns the term of a constant slot.
func (s Slot) Constant() term.Term { return s.constant }

func (s Slot) String() string {
	if s.IsVar() {
		return "?" + s.variable
	}
	return s.constant.String()
}

// Pattern is a triple template.
type Pattern struct {
	Subject   Slot
	Predicate Slot
	Object    Slot
}

// New returns a new pattern.
func New(s, p, o Slot) Pattern {
	return Pattern{Subject: s, Predicate: p, Object: o}
}

// Get returns the slot at the given position.
func (p *Pattern) Get(pos term.Position) Slot {
	switch pos {
	case term.Subject:
		return p.Subject
	case term.Predicate:
		return p.Predicate
	default:
		return p.Object
	}
}

// ConstMask returns a bitmask with bit i set if the slot at position i is a constant.
func (p *Pattern) ConstMask() uint8 {
	var mask uint8
	for _, pos := range term.Positions {
		if !p.Get(pos).IsVar() {
			mask |= 1 << pos
		}
	}
	return mask
}

// IsGround returns true if the pattern contains no variables.
func (p *Pattern) IsGround() bool { return p.ConstMask() == 0b111 }

// Variables returns the distinct variable names of the pattern in slot order.
func (p *Pattern) Variables() []string {
	ret := []string{}
	seen := map[string]bool{}
	for _, pos := range term.Positions {
		if s := p.Get(pos); s.IsVar() && !seen[s.variable] {
			seen[s.variable] = true
			ret = append(ret, s.variable)
		}
	}
	return ret
}

// Validate checks that every constant slot holds a valid term.
func (p *Pattern) Validate() error {
	for _, pos := range term.Positions {
		if s := p.Get(pos); !s.IsVar() && s.constant.IsZero() {
			return fmt.Errorf("pattern %s: empty constant in %s position", p, pos)
		}
	}
	return nil
}

// Unify tries to match the pattern against a ground triple under the given bindings. On success
// it returns the bindings extended with every variable first bound by this triple. On failure it
// returns the input bindings unchanged and false. Unify is pure: it never modifies b.
func (p *Pattern) Unify(t term.Triple, b binding.Set) (binding.Set, bool) {
	// bindings introduced by this pattern, kept aside until all three slots agree
	var fresh [3]struct {
		name  string
		value term.Term
	}
	n := 0

	for _, pos := range term.Positions {
		slot, value := p.Get(pos), t.Get(pos)

		if !slot.IsVar() {
			if slot.constant != value {
				return b, false
			}
			continue
		}

		if bound, ok := b.Get(slot.variable); ok {
			if bound != value {
				return b, false
			}
			continue
		}

		seen := false
		for i := 0; i < n; i++ {
			if fresh[i].name == slot.variable {
				if fresh[i].value != value {
					return b, false
				}
				seen = true
				break
			}
		}
		if !seen {
			fresh[n].name, fresh[n].value = slot.variable, value
			n++
		}
	}

	ret := b
	for i := 0; i < n; i++ {
		ret = ret.Extend(fresh[i].name, fresh[i].value)
	}
	return ret, true
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s %s %s", p.Subject, p.Predicate, p.Object)
}
