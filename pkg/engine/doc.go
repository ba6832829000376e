// Package engine implements continuous graph pattern matching over an unbounded stream of
// triples.
//
// Clients register standing queries (subscriptions) and feed triples one by one. Each incoming
// triple is joined incrementally against the in-flight partial results of every query; whenever
// a combination of triples satisfies a query's full graph pattern, the resulting variable
// bindings are delivered to the subscription's handler. No query is ever re-evaluated from
// scratch and no triple is stored: the only state is the index of partial results.
//
// Key components:
//   - partialResult: an immutable join state (subscription, bindings, remaining patterns).
//     Advancing a join creates a successor; the ancestor stays indexed so that other triples
//     can extend it differently.
//   - index: a sharded map from pattern keys to buckets of partial results. A pattern's key is
//     made of the slots that are fixed, either by a constant or by an already bound variable, so
//     an incoming triple only probes the 8 keys obtained by projecting it onto every subset of
//     positions. Each bucket is locked independently.
//   - Subscription: a validated query plus a handler and a delivery policy.
//   - Engine: registration, ingestion, cancellation, expiry and delivery.
//
// A partial result is reachable through every one of its remaining patterns, which makes
// matching independent of the arrival order of the triples. A single triple may satisfy several
// patterns of the same query, in which case it is re-applied to the successor's later patterns
// only, so every combination of triples is produced exactly once.
//
// OnTriple may be called concurrently. The join phase of each triple runs in sequence number
// order, so every pair of triples is joined exactly once regardless of which goroutine fed them;
// handlers and delivery queues are served outside that phase.
//
// Precondition: queries are validated at construction time (see package query); the engine
// never receives a malformed pattern.
//
// Example usage:
//
//	e, _ := engine.New(engine.Options{Logger: log})
//	q := query.MustParse("people", `?x <type> <Person> . ?x <name> ?n .`)
//	sub, _ := engine.NewSubscription(q, func(ctx context.Context, s engine.Solution) error {
//		fmt.Println(s.Bindings)
//		return nil
//	})
//	_ = e.Register(sub)
//	_ = e.OnTriple(ctx, term.NewTriple(a1, typ, person))
package engine
