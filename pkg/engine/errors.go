package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineClosed is returned by operations invoked after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrAlreadyRegistered is returned when a subscription is registered twice.
	ErrAlreadyRegistered = errors.New("subscription already registered")
	// ErrHandler wraps errors returned or panics raised by subscription handlers.
	ErrHandler = errors.New("result handler failed")
	// ErrDeliveryDropped is reported when a solution is discarded because the delivery queue of
	// a subscription with the Drop policy is full.
	ErrDeliveryDropped = errors.New("delivery queue full, solution dropped")
)

type ErrSubscription = error

// NewHandlerError reports a failed handler invocation.
func NewHandlerError(sub *Subscription, err error) ErrSubscription {
	return fmt.Errorf("subscription %s (%s): %w: %w", sub.name, sub.id, ErrHandler, err)
}

// NewDeliveryDroppedError reports a dropped solution.
func NewDeliveryDroppedError(sub *Subscription) ErrSubscription {
	return fmt.Errorf("subscription %s (%s): %w", sub.name, sub.id, ErrDeliveryDropped)
}

type ErrInvalidTriple = error

// NewInvalidTripleError reports a triple that cannot be ingested.
func NewInvalidTripleError(err error) ErrInvalidTriple {
	return fmt.Errorf("invalid triple: %w", err)
}
