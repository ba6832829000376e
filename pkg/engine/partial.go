package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/pattern"
	"github.com/l7mp/triplestream/pkg/plist"
	"github.com/l7mp/triplestream/pkg/term"
)

// step is a pattern of a subscription together with its position in the graph pattern.
type step struct {
	pos     int
	pattern *pattern.Pattern
}

func (s step) String() string { return s.pattern.String() }

// partialResult is an in-flight join state. It is never modified after construction.
type partialResult struct {
	sub       *Subscription
	bindings  binding.Set
	remaining plist.List[step]
	// seq is the sequence number of the last triple that advanced this lineage, 0 for the
	// initial partial result. A triple only joins partial results with a smaller seq.
	seq uint64
	// expires is the expiry deadline, zero means never.
	expires time.Time
}

// newInitialPartialResult creates the start state of a subscription: no bindings, all patterns
// remaining.
func newInitialPartialResult(sub *Subscription) *partialResult {
	return &partialResult{
		sub:       sub,
		bindings:  binding.Empty(),
		remaining: sub.steps,
	}
}

// isComplete returns true when no pattern remains to be matched.
func (p *partialResult) isComplete() bool { return p.remaining.IsEmpty() }

func (p *partialResult) expired(now time.Time) bool {
	return !p.expires.IsZero() && !now.Before(p.expires)
}

// advance tries to match the i-th remaining step against the triple. On success it returns the
// successor that drops the step and carries the extended bindings.
func (p *partialResult) advance(i int, st step, t term.Triple, seq uint64, now time.Time) (*partialResult, bool) {
	b, ok := st.pattern.Unify(t, p.bindings)
	if !ok {
		return nil, false
	}

	expires := p.expires
	if ttl := p.sub.ttl; ttl > 0 {
		if deadline := now.Add(ttl); expires.IsZero() || deadline.Before(expires) {
			expires = deadline
		}
	}

	return &partialResult{
		sub:       p.sub,
		bindings:  b,
		remaining: p.remaining.RemoveAt(i),
		seq:       seq,
		expires:   expires,
	}, true
}

func (p *partialResult) String() string {
	steps := make([]string, 0, p.remaining.Len())
	p.remaining.Each(func(_ int, s step) bool {
		steps = append(steps, s.String())
		return true
	})
	return fmt.Sprintf("partial(%s, %s, {%s})", p.sub.name, p.bindings, strings.Join(steps, " . "))
}
