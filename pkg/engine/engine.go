package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/l7mp/triplestream/pkg/term"
)

// DefaultSweepInterval is the default period of the expiry sweep run by Start.
const DefaultSweepInterval = 10 * time.Second

// ErrorChannelBufferSize is the recommended capacity of the error channel.
const ErrorChannelBufferSize = 64

// Options configures an engine.
type Options struct {
	// Logger is the base logger. Defaults to a discarding logger.
	Logger logr.Logger
	// Shards is the number of index shards, rounded up to a power of two.
	Shards int
	// SweepInterval is the period of the expiry sweep run by Start.
	SweepInterval time.Duration
	// ErrorChannel receives asynchronous failures: handler errors in queued mode and dropped
	// solutions. Sends never block; errors are discarded when the channel is full or nil.
	ErrorChannel chan error
	// MetricsRegisterer, if set, receives the engine's Prometheus collectors.
	MetricsRegisterer prometheus.Registerer
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Engine matches standing queries against a stream of triples.
type Engine struct {
	index    *index
	metrics  *metrics
	registry prometheus.Registerer
	errorCh  chan error
	now      func() time.Time
	interval time.Duration

	// ingest orders the join phase of concurrent OnTriple calls by sequence number.
	ingest sync.Mutex
	seq    atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*Subscription

	// lifecycle is held for reading by OnTriple and Register and for writing by Close.
	lifecycle sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	logger, log logr.Logger
}

// Stats is a point-in-time summary of the engine state.
type Stats struct {
	Subscriptions int
	IndexEntries  int
	Buckets       int
	Triples       uint64
}

// New creates a new engine.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	shards := opts.Shards
	if shards <= 0 {
		shards = DefaultShards
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	idx := newIndex(shards)
	m := newMetrics(idx)
	if err := m.register(opts.MetricsRegisterer); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		index:    idx,
		metrics:  m,
		registry: opts.MetricsRegisterer,
		errorCh:  opts.ErrorChannel,
		now:      clock,
		interval: interval,
		subs:     make(map[string]*Subscription),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		log:      logger.WithName("engine"),
	}

	e.log.V(1).Info("engine created", "shards", len(idx.shards), "sweep-interval", interval.String())

	return e, nil
}

// GetErrorChannel returns the channel the engine uses to surface asynchronous errors.
func (e *Engine) GetErrorChannel() chan error { return e.errorCh }

// Register adds a subscription: its initial partial result, with no bindings and the full graph
// pattern, is inserted into the index. A subscription can be registered only once.
func (e *Engine) Register(sub *Subscription) error {
	if sub == nil {
		return errors.New("register: nil subscription")
	}

	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}

	if !sub.registered.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s (%s)", ErrAlreadyRegistered, sub.name, sub.id)
	}
	sub.engine.Store(e)

	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()

	if sub.delivery.Mode == Queued {
		sub.queue = make(chan Solution, sub.delivery.QueueSize)
		e.wg.Add(1)
		go e.dispatch(sub)
	}

	n := e.index.insert(newInitialPartialResult(sub))
	e.metrics.subscriptions.Inc()

	e.log.V(1).Info("subscription registered", "subscription", sub.name, "id", sub.id,
		"query", sub.query.String(), "delivery", sub.delivery.Mode.String(),
		"policy", sub.delivery.Policy.String(), "ttl", sub.ttl.String(), "entries", n)

	return nil
}

// Cancel removes every partial result of the subscription from the index. After Cancel returns,
// no new partial result of the subscription is indexed and no new solution is queued for it; a
// handler invocation already in progress may still complete. Canceling an unknown or already
// canceled subscription is a no-op.
func (e *Engine) Cancel(sub *Subscription) {
	if sub == nil || sub.engine.Load() != e {
		return
	}
	if !sub.cancel() {
		return
	}

	e.mu.Lock()
	delete(e.subs, sub.id)
	e.mu.Unlock()

	removed, visited := e.index.removeSubscription(sub)
	e.metrics.subscriptions.Dec()

	e.log.V(1).Info("subscription canceled", "subscription", sub.name, "id", sub.id,
		"removed-entries", removed, "visited-buckets", visited)
}

// OnTriple joins a triple against every partial result it may extend. Successors are indexed,
// complete solutions are delivered. Unification failures are not errors. In synchronous delivery
// mode the joined handler errors are returned after all solutions have been delivered. Once ctx is
// canceled no further solution of the triple is delivered and the context error is returned.
//
// Concurrent calls are joined with each other: the join phase of the triples is ordered by their
// sequence numbers, only the delivery of solutions runs in parallel.
func (e *Engine) OnTriple(ctx context.Context, t term.Triple) error {
	if err := t.Valid(); err != nil {
		return NewInvalidTripleError(err)
	}

	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &join{engine: e, triple: t}
	n := j.run()

	e.metrics.triples.Inc()
	e.log.V(4).Info("triple", "seq", j.seq, "triple", t.String(), "candidates", n,
		"solutions", len(j.solutions))

	var errs []error
	for _, p := range j.solutions {
		if ctx.Err() != nil {
			break
		}
		if err := e.deliver(ctx, p.sub, p.solution); err != nil && !errors.Is(err, ctx.Err()) {
			errs = append(errs, err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// pendingSolution is a solution found by the join phase, awaiting delivery.
type pendingSolution struct {
	sub      *Subscription
	solution Solution
}

// join is the state of processing one triple.
type join struct {
	engine    *Engine
	triple    term.Triple
	seq       uint64
	now       time.Time
	solutions []pendingSolution
}

// run numbers the triple and advances every candidate. A triple sees every successor of the
// triples numbered before it. Returns the number of candidates.
func (j *join) run() int {
	e := j.engine
	e.ingest.Lock()
	defer e.ingest.Unlock()

	j.seq = e.seq.Add(1)
	j.now = e.now()
	candidates := e.index.candidates(j.triple, j.seq, j.now)
	for _, c := range candidates {
		if c.partial.sub.canceled.Load() {
			continue
		}
		j.advance(c.partial, c.idx, c.step)
	}
	return len(candidates)
}

// advance matches the step at position i of p against the triple. A successor is indexed or
// collected for delivery, then the same triple is tried on the successor's steps that come later
// in the graph pattern, so that each set of patterns satisfied by one triple is produced once.
func (j *join) advance(p *partialResult, i int, st step) {
	e := j.engine
	next, ok := p.advance(i, st, j.triple, j.seq, j.now)
	if !ok {
		return
	}
	e.metrics.partials.Inc()

	if e.log.V(5).Enabled() {
		e.log.V(5).Info("partial result advanced", "from", p.String(), "to", next.String())
	}

	if next.isComplete() {
		j.solutions = append(j.solutions, pendingSolution{
			sub:      next.sub,
			solution: Solution{SubscriptionID: next.sub.id, Query: next.sub.name, Bindings: next.bindings},
		})
		return
	}

	e.index.insert(next)

	next.remaining.Each(func(k int, later step) bool {
		if later.pos > st.pos {
			j.advance(next, k, later)
		}
		return true
	})
}

// Sweep removes expired partial results and leftovers of canceled subscriptions. It returns the
// number of index entries removed.
func (e *Engine) Sweep() int {
	expired, canceled := e.index.sweep(e.now())
	if expired > 0 {
		e.metrics.expired.Add(float64(expired))
	}
	if expired+canceled > 0 {
		e.log.V(2).Info("expiry sweep", "expired-entries", expired, "canceled-entries", canceled,
			"entries", e.index.size())
	}
	return expired + canceled
}

// Start runs the periodic expiry sweep. It blocks until the context is canceled.
func (e *Engine) Start(ctx context.Context) error {
	e.log.V(1).Info("starting")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.V(1).Info("stopping")
			return nil
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Close stops the engine. It waits for in-flight OnTriple and Register calls, lets the
// dispatchers deliver the solutions already queued, then cancels every subscription. Close must
// not be called from a result handler.
func (e *Engine) Close() {
	e.lifecycle.Lock()
	if e.closed {
		e.lifecycle.Unlock()
		return
	}
	e.closed = true
	e.lifecycle.Unlock()

	subs := e.Subscriptions()
	for _, sub := range subs {
		sub.stopQueue()
	}
	e.wg.Wait()

	for _, sub := range subs {
		e.Cancel(sub)
	}
	e.cancel()
	e.metrics.unregister(e.registry)

	e.log.V(1).Info("engine closed", "subscriptions", len(subs))
}

// Subscriptions returns the registered subscriptions.
func (e *Engine) Subscriptions() []*Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ret := make([]*Subscription, 0, len(e.subs))
	for _, s := range e.subs {
		ret = append(ret, s)
	}
	return ret
}

// GetSubscription returns the subscription with the given id.
func (e *Engine) GetSubscription(id string) *Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.subs[id]
}

// Stats returns a summary of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	n := len(e.subs)
	e.mu.RUnlock()
	return Stats{
		Subscriptions: n,
		IndexEntries:  e.index.size(),
		Buckets:       e.index.numBuckets(),
		Triples:       e.seq.Load(),
	}
}

// reportError logs an asynchronous failure and forwards it to the error channel without
// blocking.
func (e *Engine) reportError(err error) {
	e.log.V(2).Info("asynchronous error", "error", err.Error())
	if e.errorCh == nil {
		return
	}
	select {
	case e.errorCh <- err:
	default:
	}
}
