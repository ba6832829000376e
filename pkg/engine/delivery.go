package engine

import (
	"context"
	"fmt"
)

// DeliveryMode selects how solutions reach the handler.
type DeliveryMode int

const (
	// Queued hands solutions to a per-subscription dispatcher goroutine through a bounded
	// queue, so a slow handler never runs on the ingestion path.
	Queued DeliveryMode = iota
	// Synchronous runs the handler inline in OnTriple. Handler errors are returned by OnTriple.
	Synchronous
)

func (m DeliveryMode) String() string {
	switch m {
	case Queued:
		return "queued"
	case Synchronous:
		return "synchronous"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// FullQueuePolicy decides what happens when a solution meets a full delivery queue.
type FullQueuePolicy int

const (
	// Block makes ingestion wait for room in the queue. No solution is lost; a canceled
	// subscription or a canceled OnTriple context releases the waiting producer.
	Block FullQueuePolicy = iota
	// Drop discards the solution and reports ErrDeliveryDropped on the engine's error channel.
	Drop
)

func (p FullQueuePolicy) String() string {
	switch p {
	case Block:
		return "block"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// DefaultQueueSize is the default capacity of a delivery queue.
const DefaultQueueSize = 256

// DeliveryOptions configures the delivery of solutions to a subscription's handler.
type DeliveryOptions struct {
	Mode      DeliveryMode
	QueueSize int
	Policy    FullQueuePolicy
}

// DefaultDeliveryOptions returns queued, blocking delivery with the default queue size.
func DefaultDeliveryOptions() DeliveryOptions {
	return DeliveryOptions{Mode: Queued, QueueSize: DefaultQueueSize, Policy: Block}
}

func (o *DeliveryOptions) validate() error {
	switch o.Mode {
	case Queued:
		if o.QueueSize <= 0 {
			o.QueueSize = DefaultQueueSize
		}
	case Synchronous:
	default:
		return fmt.Errorf("subscription: unknown delivery mode %s", o.Mode)
	}
	if o.Policy != Block && o.Policy != Drop {
		return fmt.Errorf("subscription: unknown full-queue policy %s", o.Policy)
	}
	return nil
}

// deliver hands a solution to the subscription. In synchronous mode the handler error is
// returned; in queued mode only a canceled context is.
func (e *Engine) deliver(ctx context.Context, sub *Subscription, sol Solution) error {
	if sub.delivery.Mode == Synchronous {
		if sub.canceled.Load() {
			return nil
		}
		e.metrics.solutions.WithLabelValues(sub.name).Inc()
		return e.invoke(ctx, sub, sol)
	}

	sub.mu.RLock()
	defer sub.mu.RUnlock()

	if sub.canceled.Load() || sub.queueClosed {
		return nil
	}

	if sub.delivery.Policy == Drop {
		select {
		case sub.queue <- sol:
			e.metrics.solutions.WithLabelValues(sub.name).Inc()
		default:
			e.metrics.dropped.WithLabelValues(sub.name).Inc()
			e.reportError(NewDeliveryDroppedError(sub))
		}
		return nil
	}

	select {
	case sub.queue <- sol:
		e.metrics.solutions.WithLabelValues(sub.name).Inc()
		return nil
	case <-sub.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invoke calls the handler, converting errors and panics into handler errors.
func (e *Engine) invoke(ctx context.Context, sub *Subscription, sol Solution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewHandlerError(sub, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			e.metrics.handlerErrors.WithLabelValues(sub.name).Inc()
		}
	}()

	if herr := sub.handler(ctx, sol); herr != nil {
		return NewHandlerError(sub, herr)
	}
	return nil
}

// dispatch drains the delivery queue of a subscription until the subscription is canceled or
// the queue is closed.
func (e *Engine) dispatch(sub *Subscription) {
	defer e.wg.Done()
	log := e.log.WithValues("subscription", sub.name, "id", sub.id)
	log.V(2).Info("dispatcher starting")
	defer log.V(2).Info("dispatcher stopped")

	for {
		select {
		case <-sub.done:
			return
		case sol, ok := <-sub.queue:
			if !ok || sub.canceled.Load() {
				return
			}
			if err := e.invoke(e.ctx, sub, sol); err != nil {
				log.Error(err, "result handler failed", "bindings", sol.Bindings.String())
				e.reportError(err)
			}
		}
	}
}

// stopQueue closes the delivery queue so that the dispatcher exits after draining it.
func (sub *Subscription) stopQueue() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.queue != nil && !sub.queueClosed {
		close(sub.queue)
		sub.queueClosed = true
	}
}
