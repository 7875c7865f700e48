package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaic/creator/common/logger"
)

// MemoryQueue is an in-process queue with the same visibility semantics as
// the redis driver. Enqueue fails with ErrThrottled once a queue holds
// capacity messages.
type MemoryQueue struct {
	mu         sync.Mutex
	queues     map[string]*memoryTopic
	visibility time.Duration
	capacity   int
	nextID     uint64
	now        func() time.Time
	log        *logger.Logger
}

type memoryTopic struct {
	entries []*memoryEntry
}

type memoryEntry struct {
	msg          Message
	invisibleTil time.Time
	delivered    bool
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(visibility time.Duration, capacity int, log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		queues:     make(map[string]*memoryTopic),
		visibility: visibility,
		capacity:   capacity,
		now:        time.Now,
		log:        log,
	}
}

// EnsureQueue creates the queue if absent
func (q *MemoryQueue) EnsureQueue(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.topic(name)
	return nil
}

// Enqueue appends a message
func (q *MemoryQueue) Enqueue(ctx context.Context, name, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.topic(name)
	if q.capacity > 0 && len(t.entries) >= q.capacity {
		q.log.Warn("queue full", "queue", name, "capacity", q.capacity)
		return fmt.Errorf("%w: queue %s holds %d messages", ErrThrottled, name, len(t.entries))
	}

	q.nextID++
	t.entries = append(t.entries, &memoryEntry{
		msg: Message{
			ID:         strconv.FormatUint(q.nextID, 10),
			Body:       body,
			EnqueuedAt: q.now(),
		},
	})
	return nil
}

// Receive returns visible messages and hides them for the visibility window.
// It never blocks.
func (q *MemoryQueue) Receive(ctx context.Context, name string, max int, _ time.Duration) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Message
	for _, e := range q.topic(name).entries {
		if len(out) >= max {
			break
		}
		if now.Before(e.invisibleTil) {
			continue
		}
		msg := e.msg
		msg.Redelivered = e.delivered
		e.delivered = true
		e.invisibleTil = now.Add(q.visibility)
		out = append(out, msg)
	}
	return out, nil
}

// Ack removes the message
func (q *MemoryQueue) Ack(ctx context.Context, name string, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := q.topic(name)
	for i, e := range t.entries {
		if e.msg.ID == msg.ID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of unacknowledged messages in a queue
func (q *MemoryQueue) Len(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.topic(name).entries)
}

// Close drops all queues
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues = make(map[string]*memoryTopic)
	q.log.Info("memory queue closed")
	return nil
}

// topic must be called with q.mu held
func (q *MemoryQueue) topic(name string) *memoryTopic {
	t, ok := q.queues[name]
	if !ok {
		t = &memoryTopic{}
		q.queues[name] = t
	}
	return t
}
