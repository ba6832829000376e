package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/triplestream/internal/testutils"
	"github.com/l7mp/triplestream/pkg/engine"
	"github.com/l7mp/triplestream/pkg/query"
)

func TestCLI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Triplestream CLI Suite")
}

const input = `
<http://example.org/a1> <http://example.org/name> "Alice" .
this is not a triple
<http://example.org/a1> <http://example.org/type> <http://example.org/Person> .
# comment
<http://example.org/a2> <http://example.org/type> <http://example.org/Person> .
`

var _ = Describe("CLI", func() {
	var (
		e   *engine.Engine
		buf *syncBuffer
		out *output
	)

	BeforeEach(func() {
		var err error
		e, err = engine.New(engine.Options{Logger: testutils.NewLogger(1)})
		Expect(err).NotTo(HaveOccurred())
		buf = &syncBuffer{}
		out = &output{enc: json.NewEncoder(buf)}
	})

	AfterEach(func() {
		e.Close()
	})

	It("should apply per-query settings over the defaults", func() {
		c := config{queueSize: 8, ttl: time.Minute, drop: true}

		sub, err := subscribe(&query.Spec{Name: "a", Where: testutils.PersonQuery}, c, out.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Name()).To(Equal("a"))

		sub, err = subscribe(&query.Spec{Name: "b", Where: testutils.PersonQuery, TTL: "1s",
			QueueSize: 4, Policy: "block"}, c, out.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Name()).To(Equal("b"))

		_, err = subscribe(&query.Spec{Name: "c", Where: "?x ?y"}, c, out.handle)
		Expect(err).To(HaveOccurred())
	})

	It("should stream solutions as JSON lines and skip malformed statements", func() {
		sub, err := subscribe(&query.Spec{Name: "people", Where: testutils.PersonQuery},
			config{queueSize: 16}, out.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Register(sub)).To(Succeed())

		Expect(ingest(context.Background(), e, strings.NewReader(input), 1, testutils.NewLogger(1))).To(Succeed())
		e.Close()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(1))
		Expect(lines[0]).To(MatchJSON(`{"query":"people","bindings":{"n":"\"Alice\"","x":"<http://example.org/a1>"}}`))
		Expect(e.Stats().Triples).To(Equal(uint64(3)))
	})

	It("should ingest with several workers", func() {
		sub, err := subscribe(&query.Spec{Name: "all", Where: "?s ?p ?o"}, config{synchronous: true}, out.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Register(sub)).To(Succeed())

		Expect(ingest(context.Background(), e, strings.NewReader(input), 4, testutils.NewLogger(1))).To(Succeed())
		Expect(strings.Count(buf.String(), "\n")).To(Equal(3))
	})

	It("should join triples processed by different workers", func() {
		const people = 100
		sub, err := subscribe(&query.Spec{Name: "people", Where: testutils.PersonQuery},
			config{queueSize: 16}, out.handle)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Register(sub)).To(Succeed())

		var doc strings.Builder
		for i := 0; i < people; i++ {
			s := testutils.IRI(fmt.Sprintf("p%d", i))
			doc.WriteString(testutils.NameTriple(s, testutils.Alice).String() + "\n")
			doc.WriteString(testutils.TypeTriple(s).String() + "\n")
		}

		Expect(ingest(context.Background(), e, strings.NewReader(doc.String()), 8, testutils.NewLogger(1))).To(Succeed())
		e.Close()

		Expect(strings.Count(buf.String(), "\n")).To(Equal(people))
		Expect(e.Stats().Triples).To(Equal(uint64(2 * people)))
	})

	It("should not start a server on a disabled address", func() {
		Expect(serve(context.Background(), "0", probeHandler(), testutils.NewLogger(1))).To(Succeed())
	})
})

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
