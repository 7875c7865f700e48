package objectstore

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"iter"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store for tests and local runs
type MemoryStore struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
	urls       URLBuilder
}

// NewMemoryStore creates an empty store
func NewMemoryStore(urls URLBuilder) *MemoryStore {
	return &MemoryStore{
		containers: make(map[string]map[string][]byte),
		urls:       urls,
	}
}

// EnsureContainer creates the container if absent
func (m *MemoryStore) EnsureContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.containers[container]; !ok {
		m.containers[container] = make(map[string][]byte)
	}
	return nil
}

// WriteObject buffers the whole stream and publishes it in one step
func (m *MemoryStore) WriteObject(ctx context.Context, container, name string, r io.Reader, length int64) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, &ctxReader{ctx: ctx, r: limitExact(r, length)}); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	objects, ok := m.containers[container]
	if !ok {
		return fmt.Errorf("%w: container %q does not exist", ErrWriteAborted, container)
	}
	objects[name] = buf.Bytes()
	return nil
}

// ListObjects iterates a snapshot of the container taken at the start of iteration
func (m *MemoryStore) ListObjects(ctx context.Context, container string) iter.Seq2[ObjectRef, error] {
	return func(yield func(ObjectRef, error) bool) {
		m.mu.RLock()
		objects := m.containers[container]
		refs := make([]ObjectRef, 0, len(objects))
		for name, data := range objects {
			refs = append(refs, ObjectRef{
				Container: container,
				Name:      name,
				SizeBytes: int64(len(data)),
				URL:       m.urls.URL(container, name),
			})
		}
		m.mu.RUnlock()

		slices.SortFunc(refs, func(a, b ObjectRef) int {
			return cmp.Compare(a.Name, b.Name)
		})

		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				yield(ObjectRef{}, fmt.Errorf("%w: %w", ErrUnreachable, err))
				return
			}
			if !yield(ref, nil) {
				return
			}
		}
	}
}

// URL returns the public URL of an object
func (m *MemoryStore) URL(container, name string) string {
	return m.urls.URL(container, name)
}

// Object returns a copy of a stored object
func (m *MemoryStore) Object(container, name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.containers[container][name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Len returns the number of objects in a container
func (m *MemoryStore) Len(container string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.containers[container])
}
