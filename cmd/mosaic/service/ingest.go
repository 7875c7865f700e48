package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
	"github.com/mosaic/creator/common/objectstore"
	"github.com/mosaic/creator/common/queue"
)

// Ingest failure kinds. The underlying store or queue error stays in the
// chain, so errors.Is works for both.
var (
	ErrContainerUnavailable = errors.New("container unavailable")
	ErrWriteFailed          = errors.New("blob write failed")
	ErrQueueUnavailable     = errors.New("queue unavailable")
	ErrEnqueueFailed        = errors.New("enqueue failed")
)

// Pipeline stage names used in logs and metrics
const (
	StageName      = "name"
	StageContainer = "container"
	StageWrite     = "write"
	StageQueue     = "queue"
	StageEnqueue   = "enqueue"
)

// FilePart is one file of a multipart upload
type FilePart struct {
	Filename    string
	ContentType string
	// Length is the declared byte count, or objectstore.UnknownLength
	Length int64
	Body   io.Reader
}

// PipelineConfig names the targets and per-call deadlines of the pipeline
type PipelineConfig struct {
	Container           string
	Queue               string
	StoreControlTimeout time.Duration
	StoreWriteTimeout   time.Duration
	EnqueueTimeout      time.Duration
}

// Pipeline stores uploaded files and schedules one work item per stored
// file. A work item is only ever enqueued after its blob was fully written.
type Pipeline struct {
	store      objectstore.Store
	queue      queue.Queue
	dispatcher *Dispatcher
	cfg        PipelineConfig
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewPipeline creates the upload intake pipeline
func NewPipeline(store objectstore.Store, q queue.Queue, dispatcher *Dispatcher, cfg PipelineConfig, m *metrics.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:      store,
		queue:      q,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    m,
		log:        log,
	}
}

// Ingest runs every stage in order and returns the first failure. Parts
// without a filename are skipped.
func (p *Pipeline) Ingest(ctx context.Context, part FilePart) error {
	image, err := p.Store(ctx, part)
	if err != nil || image == nil {
		return err
	}
	return p.Dispatch(ctx, image.Name)
}

// Accept stores the part on the caller's context, then hands the queue
// stages to the dispatcher so the caller can acknowledge immediately.
// Failures of the handed-off stages are only logged.
func (p *Pipeline) Accept(ctx context.Context, part FilePart) (*models.StoredImage, error) {
	image, err := p.Store(ctx, part)
	if err != nil || image == nil {
		return image, err
	}

	name := image.Name
	submitted := p.dispatcher.Submit(ctx, func(ctx context.Context) {
		// Dispatch logs its own failures
		_ = p.Dispatch(ctx, name)
	})
	if !submitted {
		p.log.WithContext(ctx).WithBlob(p.cfg.Container, name).Error("blob stored but not enqueued: dispatcher closed")
		p.metrics.Stage(StageEnqueue, ErrEnqueueFailed)
		return image, fmt.Errorf("%w: dispatcher closed", ErrEnqueueFailed)
	}
	return image, nil
}

// Store runs the naming, container and write stages. It returns nil and no
// error for a part without a filename.
func (p *Pipeline) Store(ctx context.Context, part FilePart) (*models.StoredImage, error) {
	log := p.log.WithContext(ctx)

	if part.Filename == "" {
		log.Debug("skipping form field without filename")
		p.metrics.StageSkipped(StageName)
		return nil, nil
	}

	name := StorageName(part.Filename)
	p.metrics.Stage(StageName, nil)
	log = log.WithBlob(p.cfg.Container, name)

	if err := p.ensureContainer(ctx); err != nil {
		log.Error("ensure container failed", "stage", StageContainer, "error", err)
		return nil, err
	}

	counter := &countingReader{r: part.Body}
	if err := p.write(ctx, name, counter, part.Length); err != nil {
		log.Error("blob write failed", "stage", StageWrite, "declared_bytes", part.Length, "read_bytes", counter.n, "error", err)
		return nil, err
	}

	log.Info("blob stored", "filename", part.Filename, "size_bytes", counter.n)
	return &models.StoredImage{
		Name:      name,
		Container: p.cfg.Container,
		SizeBytes: counter.n,
		URL:       p.store.URL(p.cfg.Container, name),
	}, nil
}

// Dispatch runs the queue stages for an already stored blob
func (p *Pipeline) Dispatch(ctx context.Context, blobName string) error {
	log := p.log.WithContext(ctx).WithBlob(p.cfg.Container, blobName).WithFields(map[string]any{"queue": p.cfg.Queue})

	if err := p.ensureQueue(ctx); err != nil {
		log.Error("ensure queue failed", "stage", StageQueue, "error", err)
		return err
	}

	if err := p.enqueue(ctx, blobName); err != nil {
		log.Error("enqueue failed", "stage", StageEnqueue, "error", err)
		return err
	}

	log.Info("work item enqueued")
	return nil
}

func (p *Pipeline) ensureContainer(ctx context.Context) (err error) {
	defer func() { p.metrics.Stage(StageContainer, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreControlTimeout)
	defer cancel()

	if err := p.store.EnsureContainer(ctx, p.cfg.Container); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrContainerUnavailable, p.cfg.Container, err)
	}
	return nil
}

func (p *Pipeline) write(ctx context.Context, name string, r io.Reader, length int64) (err error) {
	defer func() { p.metrics.Stage(StageWrite, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreWriteTimeout)
	defer cancel()

	if err := p.store.WriteObject(ctx, p.cfg.Container, name, r, length); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, err)
	}
	return nil
}

func (p *Pipeline) ensureQueue(ctx context.Context) (err error) {
	defer func() { p.metrics.Stage(StageQueue, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.EnqueueTimeout)
	defer cancel()

	if err := p.queue.EnsureQueue(ctx, p.cfg.Queue); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrQueueUnavailable, p.cfg.Queue, err)
	}
	return nil
}

func (p *Pipeline) enqueue(ctx context.Context, blobName string) (err error) {
	defer func() { p.metrics.Stage(StageEnqueue, err) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.EnqueueTimeout)
	defer cancel()

	if err := p.queue.Enqueue(ctx, p.cfg.Queue, blobName); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEnqueueFailed, blobName, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
