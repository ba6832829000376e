package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/pattern"
	"github.com/l7mp/triplestream/pkg/query"
	"github.com/l7mp/triplestream/pkg/term"
)

func iri(s string) term.Term { return term.NewIRI("http://example.org/" + s) }

func newTestSubscription(src string, opts ...SubscriptionOption) *Subscription {
	sub, err := NewSubscription(query.MustParse("test", src),
		func(context.Context, Solution) error { return nil }, opts...)
	Expect(err).NotTo(HaveOccurred())
	return sub
}

var _ = Describe("Index key", func() {
	It("should fix constants and bound variables", func() {
		p := pattern.New(pattern.Var("x"), pattern.Const(iri("name")), pattern.Var("n"))

		k := keyOf(&p, binding.Empty())
		Expect(k.mask).To(Equal(uint8(1 << term.Predicate)))
		Expect(k.String()).To(Equal("[* <http://example.org/name> *]"))

		k = keyOf(&p, binding.Empty().Extend("x", iri("a1")))
		Expect(k.mask).To(Equal(uint8(1<<term.Subject | 1<<term.Predicate)))
		Expect(k).To(Equal(tripleKey(term.NewTriple(iri("a1"), iri("name"), iri("b")), k.mask)))
	})

	It("should map all-variable patterns to the universal key", func() {
		p := pattern.New(pattern.Var("s"), pattern.Var("p"), pattern.Var("o"))
		k := keyOf(&p, binding.Empty())
		Expect(k).To(Equal(key{}))
		Expect(k.String()).To(Equal("[* * *]"))
	})

	It("should hash equal keys equally", func() {
		t := term.NewTriple(iri("a"), iri("b"), term.NewLangLiteral("c", "en"))
		Expect(tripleKey(t, 5).hash()).To(Equal(tripleKey(t, 5).hash()))
		Expect(tripleKey(t, 5).hash()).NotTo(Equal(tripleKey(t, 4).hash()))
	})

	It("should project every unifying triple onto the key of the pattern", func() {
		rnd := rand.New(rand.NewSource(7))
		vocab := []term.Term{iri("a"), iri("b"), term.NewLiteral("a")}
		vars := []string{"x", "y"}
		slot := func() pattern.Slot {
			if rnd.Intn(2) == 0 {
				return pattern.Var(vars[rnd.Intn(len(vars))])
			}
			return pattern.Const(vocab[rnd.Intn(len(vocab))])
		}

		for i := 0; i < 500; i++ {
			p := pattern.New(slot(), slot(), slot())
			b := binding.Empty()
			if rnd.Intn(2) == 0 {
				b = b.Extend("x", vocab[rnd.Intn(len(vocab))])
			}
			t := term.NewTriple(vocab[rnd.Intn(3)], vocab[rnd.Intn(3)], vocab[rnd.Intn(3)])

			if _, ok := p.Unify(t, b); ok {
				k := keyOf(&p, b)
				Expect(tripleKey(t, k.mask)).To(Equal(k), "pattern %s, bindings %s, triple %s", p, b, t)
			}
		}
	})
})

var _ = Describe("Index", func() {
	var idx *index

	BeforeEach(func() {
		idx = newIndex(3)
	})

	It("should round the shard count up to a power of two", func() {
		Expect(idx.shards).To(HaveLen(4))
		Expect(newIndex(0).shards).To(HaveLen(1))
	})

	It("should index a partial result under every remaining step", func() {
		sub := newTestSubscription(`?x <http://example.org/type> <http://example.org/Person> . ?x <http://example.org/name> ?n .`)
		Expect(idx.insert(newInitialPartialResult(sub))).To(Equal(2))
		Expect(idx.size()).To(Equal(2))
		Expect(idx.numBuckets()).To(Equal(2))

		cs := idx.candidates(term.NewTriple(iri("a1"), iri("name"), term.NewLiteral("Alice")), 1, time.Now())
		Expect(cs).To(HaveLen(1))
		Expect(cs[0].step.pos).To(Equal(1))
		Expect(cs[0].idx).To(Equal(1))

		cs = idx.candidates(term.NewTriple(iri("a1"), iri("type"), iri("Person")), 1, time.Now())
		Expect(cs).To(HaveLen(1))
		Expect(cs[0].step.pos).To(Equal(0))

		Expect(idx.candidates(term.NewTriple(iri("a1"), iri("type"), iri("Robot")), 1, time.Now())).To(BeEmpty())
	})

	It("should hide partial results created by the same or a later triple", func() {
		sub := newTestSubscription(`?x <http://example.org/type> <http://example.org/Person> . ?x <http://example.org/name> ?n .`)
		t := term.NewTriple(iri("a1"), iri("type"), iri("Person"))
		p, ok := newInitialPartialResult(sub).advance(0, step{pos: 0, pattern: &sub.query.Patterns[0]}, t, 5, time.Now())
		Expect(ok).To(BeTrue())
		Expect(p.String()).To(ContainSubstring("?x <http://example.org/name> ?n"))
		Expect(idx.insert(p)).To(Equal(1))

		name := term.NewTriple(iri("a1"), iri("name"), term.NewLiteral("Alice"))
		Expect(idx.candidates(name, 5, time.Now())).To(BeEmpty())
		Expect(idx.candidates(name, 6, time.Now())).To(HaveLen(1))
	})

	It("should remove the entries of one subscription only", func() {
		a := newTestSubscription(`?s ?p ?o`)
		b := newTestSubscription(`?s ?p ?o . ?o ?p ?s .`)
		idx.insert(newInitialPartialResult(a))
		idx.insert(newInitialPartialResult(b))
		Expect(idx.size()).To(Equal(3))
		Expect(idx.numBuckets()).To(Equal(1))

		a.cancel()
		removed, visited := idx.removeSubscription(a)
		Expect(removed).To(Equal(1))
		Expect(visited).To(Equal(1))
		Expect(idx.size()).To(Equal(2))
		Expect(idx.numBuckets()).To(Equal(1))

		b.cancel()
		removed, _ = idx.removeSubscription(b)
		Expect(removed).To(Equal(2))
		Expect(idx.size()).To(Equal(0))
		Expect(idx.numBuckets()).To(Equal(0))
	})

	It("should refuse entries of canceled subscriptions", func() {
		sub := newTestSubscription(`?s ?p ?o`)
		sub.cancel()
		Expect(idx.insert(newInitialPartialResult(sub))).To(Equal(0))
		Expect(idx.size()).To(Equal(0))
	})

	It("should sweep expired entries", func() {
		sub := newTestSubscription(`?s <http://example.org/p> ?o . ?o <http://example.org/p> ?s .`, WithTTL(time.Second))
		now := time.Unix(100, 0)
		idx.insert(newInitialPartialResult(sub))

		t := term.NewTriple(iri("a"), iri("p"), iri("b"))
		p, ok := newInitialPartialResult(sub).advance(0, step{pos: 0, pattern: &sub.query.Patterns[0]}, t, 1, now)
		Expect(ok).To(BeTrue())
		Expect(p.expires).To(Equal(now.Add(time.Second)))
		idx.insert(p)
		Expect(idx.size()).To(Equal(3))

		// successors never outlive their parents
		later := now.Add(500 * time.Millisecond)
		q, ok := p.advance(0, step{pos: 1, pattern: &sub.query.Patterns[1]},
			term.NewTriple(iri("b"), iri("p"), iri("a")), 2, later)
		Expect(ok).To(BeTrue())
		Expect(q.isComplete()).To(BeTrue())
		Expect(q.expires).To(Equal(p.expires))

		expired, canceled := idx.sweep(now)
		Expect(expired).To(Equal(0))
		Expect(canceled).To(Equal(0))
		expired, canceled = idx.sweep(now.Add(time.Second))
		Expect(expired).To(Equal(1))
		Expect(canceled).To(Equal(0))
		Expect(idx.size()).To(Equal(2))
	})

	It("should count entries of canceled subscriptions apart from expired ones", func() {
		sub := newTestSubscription(`?s ?p ?o . ?o ?p ?s .`)
		idx.insert(newInitialPartialResult(sub))
		// marked canceled but not detached from the index
		sub.canceled.Store(true)

		expired, canceled := idx.sweep(time.Now())
		Expect(expired).To(Equal(0))
		Expect(canceled).To(Equal(2))
		Expect(idx.size()).To(Equal(0))
		Expect(idx.numBuckets()).To(Equal(0))
	})

	It("should only visit the buckets a canceled subscription occupies", func() {
		a := newTestSubscription(`?x <http://example.org/type> <http://example.org/Person> .`)
		idx.insert(newInitialPartialResult(a))

		b := newTestSubscription(`?x <http://example.org/p> ?y . ?y <http://example.org/q> ?x .`)
		start := newInitialPartialResult(b)
		idx.insert(start)
		for i := 0; i < 50; i++ {
			t := term.NewTriple(iri(fmt.Sprintf("s%d", i)), iri("p"), iri(fmt.Sprintf("o%d", i)))
			p, ok := start.advance(0, step{pos: 0, pattern: &b.query.Patterns[0]}, t, uint64(i+1), time.Now())
			Expect(ok).To(BeTrue())
			idx.insert(p)
		}
		Expect(idx.numBuckets()).To(Equal(53))

		a.cancel()
		removed, visited := idx.removeSubscription(a)
		Expect(removed).To(Equal(1))
		Expect(visited).To(Equal(1))
		Expect(idx.numBuckets()).To(Equal(52))

		b.cancel()
		removed, visited = idx.removeSubscription(b)
		Expect(removed).To(Equal(52))
		Expect(visited).To(Equal(52))
		Expect(idx.numBuckets()).To(Equal(0))
	})

	It("should forget the keys of swept buckets", func() {
		sub := newTestSubscription(`?s <http://example.org/p> ?o . ?o <http://example.org/p> ?s .`, WithTTL(time.Second))
		now := time.Unix(100, 0)
		start := newInitialPartialResult(sub)
		idx.insert(start)
		p, ok := start.advance(0, step{pos: 0, pattern: &sub.query.Patterns[0]},
			term.NewTriple(iri("a"), iri("p"), iri("b")), 1, now)
		Expect(ok).To(BeTrue())
		idx.insert(p)
		Expect(sub.keys).To(HaveLen(2))

		expired, _ := idx.sweep(now.Add(time.Minute))
		Expect(expired).To(Equal(1))
		Expect(sub.keys).To(HaveLen(1))
	})

	It("should recreate a bucket after it has been reclaimed", func() {
		a := newTestSubscription(`?s ?p ?o`)
		idx.insert(newInitialPartialResult(a))
		b := idx.lookup(key{}, false)
		Expect(b).NotTo(BeNil())

		a.cancel()
		idx.removeSubscription(a)
		Expect(b.dead).To(BeTrue())

		c := newTestSubscription(`?s ?p ?o`)
		Expect(idx.insert(newInitialPartialResult(c))).To(Equal(1))
		Expect(idx.lookup(key{}, false)).NotTo(BeIdenticalTo(b))
		Expect(idx.size()).To(Equal(1))
	})
})
