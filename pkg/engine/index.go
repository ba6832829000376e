package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/l7mp/triplestream/pkg/term"
)

// DefaultShards is the default number of index shards.
const DefaultShards = 64

// entry makes a partial result discoverable through one of its remaining steps.
type entry struct {
	partial *partialResult
	idx     int // position of the step in partial.remaining
	step    step
}

// bucket holds the entries sharing a key, grouped by subscription so that cancellation can
// drop a subscription's entries without looking at anyone else's.
type bucket struct {
	mu   sync.RWMutex
	key  key
	subs map[*Subscription][]entry
	size int
	// dead is set once the bucket has been unlinked from its shard; writers must retry.
	dead bool
}

type shard struct {
	mu      sync.RWMutex
	buckets map[key]*bucket
}

// index is the sharded store of all live partial results.
type index struct {
	shards  []shard
	mask    uint64
	entries atomic.Int64
}

// newIndex creates an index with n shards, rounded up to a power of two.
func newIndex(n int) *index {
	size := 1
	for size < n {
		size <<= 1
	}
	idx := &index{shards: make([]shard, size), mask: uint64(size - 1)}
	for i := range idx.shards {
		idx.shards[i].buckets = make(map[key]*bucket)
	}
	return idx
}

func (idx *index) shardFor(k key) *shard {
	return &idx.shards[k.hash()&idx.mask]
}

// lookup returns the bucket for k, creating it if create is set.
func (idx *index) lookup(k key, create bool) *bucket {
	s := idx.shardFor(k)

	s.mu.RLock()
	b, ok := s.buckets[k]
	s.mu.RUnlock()
	if ok || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[k]; ok {
		return b
	}
	b = &bucket{key: k, subs: make(map[*Subscription][]entry)}
	s.buckets[k] = b
	return b
}

// insert indexes a partial result under the key of each of its remaining steps. Entries of
// canceled subscriptions are never added. Returns the number of entries added.
func (idx *index) insert(p *partialResult) int {
	n := 0
	p.remaining.Each(func(i int, st step) bool {
		if idx.add(keyOf(st.pattern, p.bindings), entry{partial: p, idx: i, step: st}) {
			n++
		}
		return true
	})
	return n
}

func (idx *index) add(k key, e entry) bool {
	sub := e.partial.sub
	for {
		b := idx.lookup(k, true)

		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}
		// recorded under the bucket lock: Cancel detaches the key set before it visits the buckets
		if sub.canceled.Load() || !sub.track(k) {
			b.mu.Unlock()
			return false
		}
		b.subs[sub] = append(b.subs[sub], e)
		b.size++
		b.mu.Unlock()

		idx.entries.Add(1)
		return true
	}
}

// candidates returns the entries that the triple may match: those under any of the 8
// projections of the triple, created by an earlier triple and not yet expired.
func (idx *index) candidates(t term.Triple, seq uint64, now time.Time) []entry {
	var ret []entry
	for mask := uint8(0); mask < numMasks; mask++ {
		b := idx.lookup(tripleKey(t, mask), false)
		if b == nil {
			continue
		}

		b.mu.RLock()
		for _, es := range b.subs {
			for _, e := range es {
				if e.partial.seq < seq && !e.partial.expired(now) {
					ret = append(ret, e)
				}
			}
		}
		b.mu.RUnlock()
	}
	return ret
}

// buckets returns a snapshot of all buckets.
func (idx *index) buckets() []*bucket {
	ret := []*bucket{}
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		for _, b := range s.buckets {
			ret = append(ret, b)
		}
		s.mu.RUnlock()
	}
	return ret
}

// removeSubscription drops every entry of sub, visiting only the buckets whose keys the
// subscription has occupied. The caller must have marked sub canceled. Returns the number of
// entries removed and the number of buckets visited.
func (idx *index) removeSubscription(sub *Subscription) (removed, visited int) {
	for _, k := range sub.detach() {
		for {
			b := idx.lookup(k, false)
			if b == nil {
				break
			}

			b.mu.Lock()
			if b.dead {
				b.mu.Unlock()
				continue
			}
			visited++
			es := b.subs[sub]
			delete(b.subs, sub)
			b.size -= len(es)
			removed += len(es)
			empty := b.size == 0
			b.mu.Unlock()

			if empty {
				idx.reclaim(b)
			}
			break
		}
	}
	idx.entries.Add(int64(-removed))
	return removed, visited
}

// sweep drops expired entries and entries of canceled subscriptions, and returns the two counts.
func (idx *index) sweep(now time.Time) (expired, canceled int) {
	for _, b := range idx.buckets() {
		b.mu.Lock()
		for sub, es := range b.subs {
			if sub.canceled.Load() {
				delete(b.subs, sub)
				b.size -= len(es)
				canceled += len(es)
				continue
			}

			live := es[:0]
			for _, e := range es {
				if !e.partial.expired(now) {
					live = append(live, e)
				}
			}
			// clear the tail so that dropped partial results can be collected
			for i := len(live); i < len(es); i++ {
				es[i] = entry{}
			}
			b.size -= len(es) - len(live)
			expired += len(es) - len(live)
			if len(live) == 0 {
				delete(b.subs, sub)
				sub.untrack(b.key)
			} else {
				b.subs[sub] = live
			}
		}
		empty := b.size == 0
		b.mu.Unlock()

		if empty {
			idx.reclaim(b)
		}
	}
	idx.entries.Add(int64(-(expired + canceled)))
	return expired, canceled
}

// reclaim unlinks an empty bucket from its shard.
func (idx *index) reclaim(b *bucket) {
	s := idx.shardFor(b.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 && s.buckets[b.key] == b {
		delete(s.buckets, b.key)
		b.dead = true
	}
}

// size returns the number of live entries.
func (idx *index) size() int { return int(idx.entries.Load()) }

// numBuckets returns the number of buckets.
func (idx *index) numBuckets() int {
	n := 0
	for i := range idx.shards {
		s := &idx.shards[i]
		s.mu.RLock()
		n += len(s.buckets)
		s.mu.RUnlock()
	}
	return n
}
