package service

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/mosaic/creator/common/objectstore"
	"github.com/mosaic/creator/common/queue"
)

// events records the order of store and queue calls across fakes
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

// fakeStore wraps a MemoryStore with injectable failures
type fakeStore struct {
	*objectstore.MemoryStore
	events       *events
	ensureErr    error
	writeErr     error
	listErr      error
	blockOnWrite bool
}

func (s *fakeStore) EnsureContainer(ctx context.Context, container string) error {
	if s.ensureErr != nil {
		return s.ensureErr
	}
	return s.MemoryStore.EnsureContainer(ctx, container)
}

func (s *fakeStore) WriteObject(ctx context.Context, container, name string, r io.Reader, length int64) error {
	if s.blockOnWrite {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	err := s.MemoryStore.WriteObject(ctx, container, name, r, length)
	if err == nil && s.events != nil {
		s.events.add("write:" + name)
	}
	return err
}

func (s *fakeStore) ListObjects(ctx context.Context, container string) iter.Seq2[objectstore.ObjectRef, error] {
	if s.listErr != nil {
		return func(yield func(objectstore.ObjectRef, error) bool) {
			yield(objectstore.ObjectRef{}, s.listErr)
		}
	}
	return s.MemoryStore.ListObjects(ctx, container)
}

// fakeQueue wraps a MemoryQueue with injectable failures
type fakeQueue struct {
	*queue.MemoryQueue
	events         *events
	ensureErr      error
	enqueueErr     error
	blockOnEnqueue bool
}

func (q *fakeQueue) EnsureQueue(ctx context.Context, name string) error {
	if q.ensureErr != nil {
		return q.ensureErr
	}
	return q.MemoryQueue.EnsureQueue(ctx, name)
}

func (q *fakeQueue) Enqueue(ctx context.Context, name, body string) error {
	if q.blockOnEnqueue {
		<-ctx.Done()
		return ctx.Err()
	}
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if q.events != nil {
		q.events.add("enqueue:" + body)
	}
	return q.MemoryQueue.Enqueue(ctx, name, body)
}
