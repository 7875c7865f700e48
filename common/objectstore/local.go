package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/mosaic/creator/common/logger"
)

const (
	tempDirName = ".tmp"
	listBatch   = 256
)

// ErrInvalidName is wrapped into ErrWriteAborted for names that would escape the container
var ErrInvalidName = errors.New("invalid object or container name")

// LocalStore keeps objects on the local filesystem under root/<container>/<name>.
// Writes land in a temp file first and are renamed into place, so readers
// never observe a partial object.
type LocalStore struct {
	root string
	urls URLBuilder
	log  *logger.Logger
}

// NewLocalStore creates the root and temp directories
func NewLocalStore(root string, urls URLBuilder, log *logger.Logger) (*LocalStore, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating object store root: %w", err)
	}
	return &LocalStore{root: root, urls: urls, log: log}, nil
}

// EnsureContainer creates the container directory if absent
func (s *LocalStore) EnsureContainer(ctx context.Context, container string) error {
	if err := validateName(container); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if err := os.MkdirAll(filepath.Join(s.root, container), 0o755); err != nil {
		return classifyFS(err, ErrUnreachable)
	}
	return nil
}

// WriteObject copies r into a temp file and renames it into the container
func (s *LocalStore) WriteObject(ctx context.Context, container, name string, r io.Reader, length int64) (err error) {
	if err := validateName(container); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteAborted, err)
	}
	if err := validateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteAborted, err)
	}

	dir := filepath.Join(s.root, container)
	if _, err := os.Stat(dir); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}

	tmp, err := os.Create(filepath.Join(s.root, tempDirName, uuid.NewString()))
	if err != nil {
		return classifyFS(err, ErrUnreachable)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: limitExact(r, length)}); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}
	if err = tmp.Sync(); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}
	if err = tmp.Close(); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}
	if err = os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return classifyFS(err, ErrWriteAborted)
	}

	s.log.Debug("object written", "container", container, "blob", name)
	return nil
}

// ListObjects reads the container directory in batches
func (s *LocalStore) ListObjects(ctx context.Context, container string) iter.Seq2[ObjectRef, error] {
	return func(yield func(ObjectRef, error) bool) {
		if err := validateName(container); err != nil {
			yield(ObjectRef{}, fmt.Errorf("%w: %w", ErrUnreachable, err))
			return
		}

		dir, err := os.Open(filepath.Join(s.root, container))
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(ObjectRef{}, classifyFS(err, ErrUnreachable))
			return
		}
		defer dir.Close()

		for {
			if err := ctx.Err(); err != nil {
				yield(ObjectRef{}, fmt.Errorf("%w: %w", ErrUnreachable, err))
				return
			}
			entries, err := dir.ReadDir(listBatch)
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				info, infoErr := entry.Info()
				if infoErr != nil {
					// Removed between ReadDir and Info
					continue
				}
				ref := ObjectRef{
					Container: container,
					Name:      entry.Name(),
					SizeBytes: info.Size(),
					URL:       s.URL(container, entry.Name()),
				}
				if !yield(ref, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(ObjectRef{}, classifyFS(err, ErrUnreachable))
				return
			}
		}
	}
}

// URL returns the public URL of an object
func (s *LocalStore) URL(container, name string) string {
	return s.urls.URL(container, name)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || name == tempDirName ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func classifyFS(err, fallback error) error {
	if errors.Is(err, ErrWriteAborted) {
		return err
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}

// ctxReader stops a copy once the context is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
