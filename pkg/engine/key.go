package engine

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/pattern"
	"github.com/l7mp/triplestream/pkg/term"
)

// numMasks is the number of subsets of the three triple positions.
const numMasks = 8

// key is the index signature of a pattern under a set of bindings: the mask of the fixed
// positions and the terms at those positions. Positions not in the mask hold the zero term. The
// all-zero key (mask 0) is the universal bucket.
type key struct {
	mask  uint8
	terms [3]term.Term
}

// keyOf returns the key of a pattern, treating variables bound in b as constants.
func keyOf(p *pattern.Pattern, b binding.Set) key {
	var k key
	for _, pos := range term.Positions {
		slot := p.Get(pos)
		if !slot.IsVar() {
			k.mask |= 1 << pos
			k.terms[pos] = slot.Constant()
			continue
		}
		if v, ok := b.Get(slot.Variable()); ok {
			k.mask |= 1 << pos
			k.terms[pos] = v
		}
	}
	return k
}

// tripleKey projects a triple onto the positions in mask.
func tripleKey(t term.Triple, mask uint8) key {
	k := key{mask: mask}
	for _, pos := range term.Positions {
		if mask&(1<<pos) != 0 {
			k.terms[pos] = t.Get(pos)
		}
	}
	return k
}

// hash returns a hash of the key used to select the index shard.
func (k key) hash() uint64 {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.Write([]byte{k.mask})
	for _, pos := range term.Positions {
		if k.mask&(1<<pos) == 0 {
			continue
		}
		t := k.terms[pos]
		_, _ = d.Write([]byte{byte(t.Kind)})
		_, _ = d.WriteString(t.Value)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(t.Language)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(t.Datatype)
	}
	return d.Sum64()
}

func (k key) String() string {
	s := [3]string{"*", "*", "*"}
	for _, pos := range term.Positions {
		if k.mask&(1<<pos) != 0 {
			s[pos] = k.terms[pos].String()
		}
	}
	return fmt.Sprintf("[%s %s %s]", s[0], s[1], s[2])
}
