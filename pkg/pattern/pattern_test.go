package pattern

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/term"
)

func TestPattern(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pattern Suite")
}

var (
	a1     = term.NewIRI("a1")
	a2     = term.NewIRI("a2")
	typ    = term.NewIRI("type")
	name   = term.NewIRI("name")
	person = term.NewIRI("Person")
	alice  = term.NewLiteral("Alice")
)

var _ = Describe("Pattern", func() {
	Describe("structure", func() {
		It("should compute the constant mask", func() {
			p := New(Var("x"), Const(typ), Const(person))
			Expect(p.ConstMask()).To(Equal(uint8(0b110)))
			all := New(Var("x"), Var("p"), Var("o"))
			Expect(all.ConstMask()).To(Equal(uint8(0)))
			ground := New(Const(a1), Const(typ), Const(person))
			Expect(ground.IsGround()).To(BeTrue())
		})

		It("should list distinct variables in slot order", func() {
			p := New(Var("x"), Var("p"), Var("x"))
			Expect(p.Variables()).To(Equal([]string{"x", "p"}))
		})

		It("should print in query syntax", func() {
			p := New(Var("x"), Const(name), Var("n"))
			Expect(p.String()).To(Equal("?x <name> ?n"))
		})

		It("should reject empty constants", func() {
			p := New(Var("x"), Const(term.Term{}), Var("n"))
			Expect(p.Validate()).To(HaveOccurred())
			p = New(Var("x"), Const(name), Var("n"))
			Expect(p.Validate()).NotTo(HaveOccurred())
		})
	})

	Describe("Unify", func() {
		It("should match constants and bind fresh variables", func() {
			p := New(Var("x"), Const(typ), Const(person))
			b, ok := p.Unify(term.NewTriple(a1, typ, person), binding.Empty())
			Expect(ok).To(BeTrue())
			v, _ := b.Get("x")
			Expect(v).To(Equal(a1))
			Expect(b.Len()).To(Equal(1))
		})

		It("should fail on a constant mismatch", func() {
			p := New(Var("x"), Const(typ), Const(person))
			b, ok := p.Unify(term.NewTriple(a1, name, alice), binding.Empty())
			Expect(ok).To(BeFalse())
			Expect(b.IsEmpty()).To(BeTrue())
		})

		It("should respect existing bindings", func() {
			p := New(Var("x"), Const(name), Var("n"))
			bound := binding.Empty().Extend("x", a1)

			b, ok := p.Unify(term.NewTriple(a1, name, alice), bound)
			Expect(ok).To(BeTrue())
			Expect(b.Len()).To(Equal(2))
			Expect(b.Extends(bound)).To(BeTrue())

			b, ok = p.Unify(term.NewTriple(a2, name, alice), bound)
			Expect(ok).To(BeFalse())
			Expect(b).To(Equal(bound))
		})

		It("should require repeated variables to agree", func() {
			p := New(Var("x"), Const(term.NewIRI("knows")), Var("x"))
			_, ok := p.Unify(term.NewTriple(a1, term.NewIRI("knows"), a1), binding.Empty())
			Expect(ok).To(BeTrue())

			b, ok := p.Unify(term.NewTriple(a1, term.NewIRI("knows"), a2), binding.Empty())
			Expect(ok).To(BeFalse())
			Expect(b.IsEmpty()).To(BeTrue())
		})

		It("should not leak partial bindings from a failed attempt", func() {
			p := New(Var("x"), Var("p"), Var("x"))
			start := binding.Empty().Extend("y", a2)
			b, ok := p.Unify(term.NewTriple(a1, typ, person), start)
			Expect(ok).To(BeFalse())
			Expect(b.Equal(start)).To(BeTrue())
			Expect(b.Has("p")).To(BeFalse())
		})

		It("should bind an all-variable pattern to the whole triple", func() {
			p := New(Var("s"), Var("p"), Var("o"))
			b, ok := p.Unify(term.NewTriple(a1, typ, person), binding.Empty())
			Expect(ok).To(BeTrue())
			Expect(b.Map()).To(Equal(map[string]term.Term{"s": a1, "p": typ, "o": person}))
		})

		It("should not modify its input", func() {
			p := New(Var("x"), Const(name), Var("n"))
			start := binding.Empty().Extend("x", a1)
			_, _ = p.Unify(term.NewTriple(a1, name, alice), start)
			Expect(start.Len()).To(Equal(1))
			Expect(start.Has("n")).To(BeFalse())
		})
	})
})
