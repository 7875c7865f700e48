// Package objectstore provides durable blob storage addressed by container
// and name. Drivers: S3-compatible services, the local filesystem and an
// in-process map for tests.
//
// A write is all-or-nothing: an object becomes visible under its name only
// after every byte was accepted. Callers can therefore reference the name
// (for instance in a work item) as soon as WriteObject returns nil.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
)

// Error kinds reported by every driver. Match with errors.Is.
var (
	ErrUnreachable   = errors.New("object store unreachable")
	ErrQuotaExceeded = errors.New("object store quota exceeded")
	ErrWriteAborted  = errors.New("object write aborted")
)

// UnknownLength tells WriteObject the stream length is not declared
const UnknownLength int64 = -1

// ObjectRef describes one stored object
type ObjectRef struct {
	Container string
	Name      string
	SizeBytes int64
	URL       string
}

// Store is the capability set the intake pipeline and listing depend on.
// Implementations are safe for concurrent use.
type Store interface {
	// EnsureContainer creates the container if absent. Concurrent callers
	// racing on the same name all succeed.
	EnsureContainer(ctx context.Context, container string) error

	// WriteObject stores r under container/name. When length is not
	// UnknownLength the stream must contain exactly that many bytes,
	// otherwise the write fails with ErrWriteAborted and nothing is stored.
	WriteObject(ctx context.Context, container, name string, r io.Reader, length int64) error

	// ListObjects lazily enumerates a container. Each call starts a fresh
	// listing; iteration stops after the first error.
	ListObjects(ctx context.Context, container string) iter.Seq2[ObjectRef, error]

	// URL returns the public retrieval URL of container/name
	URL(container, name string) string
}

// URLBuilder renders <scheme>://<account>.<domain>/<container>/<name>
type URLBuilder struct {
	Scheme  string
	Account string
	Domain  string
}

// URL returns the public URL for container/name
func (b URLBuilder) URL(container, name string) string {
	scheme := b.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s.%s/%s/%s", scheme, b.Account, b.Domain, url.PathEscape(container), url.PathEscape(name))
}

// exactReader fails the stream when it ends before, or runs past, the declared length
type exactReader struct {
	r         io.Reader
	remaining int64
}

func limitExact(r io.Reader, length int64) io.Reader {
	if length < 0 {
		return r
	}
	return &exactReader{r: r, remaining: length}
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining == 0 {
		// Probe for trailing bytes beyond the declared length
		var probe [1]byte
		n, err := e.r.Read(probe[:])
		if n > 0 {
			return 0, fmt.Errorf("%w: stream longer than declared length", ErrWriteAborted)
		}
		if err == nil || err == io.EOF {
			return 0, io.EOF
		}
		return 0, err
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if err == io.EOF && e.remaining > 0 {
		return n, fmt.Errorf("%w: stream ended %d bytes short: %w", ErrWriteAborted, e.remaining, io.ErrUnexpectedEOF)
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}
