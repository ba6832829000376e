package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/plist"
	"github.com/l7mp/triplestream/pkg/query"
)

// Solution is a complete match of a subscription's graph pattern.
type Solution struct {
	SubscriptionID string      `json:"id"`
	Query          string      `json:"query"`
	Bindings       binding.Set `json:"bindings"`
}

// Handler is invoked for every solution of a subscription. A returned error is reported but
// never affects the processing of other partial results or other subscriptions.
type Handler func(ctx context.Context, s Solution) error

// SubscriptionOption customizes a subscription.
type SubscriptionOption func(*Subscription)

// WithName overrides the name of the subscription, which defaults to the query name.
func WithName(name string) SubscriptionOption {
	return func(s *Subscription) { s.name = name }
}

// WithDelivery sets the delivery options of the subscription.
func WithDelivery(opts DeliveryOptions) SubscriptionOption {
	return func(s *Subscription) { s.delivery = opts }
}

// WithTTL makes partial results expire ttl after the first triple of their lineage arrived. A
// zero ttl disables expiry.
func WithTTL(ttl time.Duration) SubscriptionOption {
	return func(s *Subscription) { s.ttl = ttl }
}

// Subscription is a standing query registered with an engine. The engine references, but does
// not own, the subscription's patterns.
type Subscription struct {
	id       string
	name     string
	query    *query.Query
	handler  Handler
	steps    plist.List[step]
	delivery DeliveryOptions
	ttl      time.Duration

	engine     atomic.Pointer[Engine]
	registered atomic.Bool

	// mu orders deliveries against cancellation and queue shutdown.
	mu          sync.RWMutex
	canceled    atomic.Bool
	cancelOnce  sync.Once
	done        chan struct{}
	queue       chan Solution
	queueClosed bool

	// keys holds the index keys of the buckets the subscription has entries in. Always locked
	// after the bucket lock.
	keysMu   sync.Mutex
	keys     map[key]struct{}
	detached bool
}

// NewSubscription creates a subscription for a validated query.
func NewSubscription(q *query.Query, h Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if q == nil {
		return nil, errors.New("subscription: nil query")
	}
	if h == nil {
		return nil, errors.New("subscription: nil handler")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s := &Subscription{
		id:       uuid.NewString(),
		name:     q.Name,
		query:    q,
		handler:  h,
		delivery: DefaultDeliveryOptions(),
		done:     make(chan struct{}),
		keys:     make(map[key]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.delivery.validate(); err != nil {
		return nil, err
	}
	if s.ttl < 0 {
		return nil, errors.New("subscription: negative ttl")
	}

	steps := make([]step, len(q.Patterns))
	for i := range q.Patterns {
		steps[i] = step{pos: i, pattern: &q.Patterns[i]}
	}
	s.steps = plist.New(steps...)

	return s, nil
}

// ID returns the unique id of the subscription.
func (s *Subscription) ID() string { return s.id }

// Name returns the name of the subscription.
func (s *Subscription) Name() string { return s.name }

// Query returns the graph pattern of the subscription.
func (s *Subscription) Query() *query.Query { return s.query }

// Canceled returns true once the subscription has been canceled.
func (s *Subscription) Canceled() bool { return s.canceled.Load() }

// Done returns a channel that is closed when the subscription is canceled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// cancel marks the subscription canceled. Once it returns, no delivery is in progress on the
// queue and none will start.
func (s *Subscription) cancel() bool {
	first := false
	s.cancelOnce.Do(func() {
		first = true
		// unblock producers waiting on a full queue before taking the write lock
		close(s.done)
		s.mu.Lock()
		s.canceled.Store(true)
		s.mu.Unlock()
	})
	return first
}

// track records that the subscription has entries under k. It fails once the subscription has been
// detached from the index.
func (s *Subscription) track(k key) bool {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	if s.detached {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// untrack forgets k after the last entry of the subscription under it is gone.
func (s *Subscription) untrack(k key) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	delete(s.keys, k)
}

// detach stops key tracking and returns the keys recorded so far.
func (s *Subscription) detach() []key {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	s.detached = true
	ret := make([]key, 0, len(s.keys))
	for k := range s.keys {
		ret = append(ret, k)
	}
	s.keys = nil
	return ret
}
