// Package queue hands work items to asynchronous consumers.
//
// Delivery is at-least-once and unordered: a received message stays
// invisible to other consumers for the visibility window and is delivered
// again unless it is acknowledged within that window. Consumers must be
// idempotent.
package queue

import (
	"context"
	"errors"
	"time"
)

// Error kinds reported by every driver. Match with errors.Is.
var (
	ErrUnreachable = errors.New("queue unreachable")
	ErrThrottled   = errors.New("queue throttled")
)

// Queue is the producer side used by the intake pipeline
type Queue interface {
	// EnsureQueue creates the queue if absent; safe under concurrent callers
	EnsureQueue(ctx context.Context, name string) error
	// Enqueue appends a plain-text message
	Enqueue(ctx context.Context, name, body string) error
	Close() error
}

// Consumer is the receiving side used by workers
type Consumer interface {
	// Receive returns up to max messages, waiting at most block for new ones.
	// Messages whose visibility window elapsed without an Ack are redelivered.
	Receive(ctx context.Context, name string, max int, block time.Duration) ([]Message, error)
	// Ack removes a message for good
	Ack(ctx context.Context, name string, msg Message) error
}

// Message is one delivered work item
type Message struct {
	ID         string
	Body       string
	EnqueuedAt time.Time
	// Redelivered is true when the message was reclaimed after its visibility window
	Redelivered bool
}
