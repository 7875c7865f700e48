package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
	"github.com/mosaic/creator/common/queue"
)

// Source is the queue a worker consumes
type Source interface {
	EnsureQueue(ctx context.Context, name string) error
	queue.Consumer
}

// HandleFunc processes one work item. Items are delivered at least once, so
// a handler must tolerate seeing the same blob again.
type HandleFunc func(ctx context.Context, item models.WorkItem) error

// Config tunes the receive loop
type Config struct {
	Queue     string
	BatchSize int
	// Block is how long one Receive waits for new messages
	Block time.Duration
	// Backoff is the pause after an empty batch or a receive error
	Backoff time.Duration
}

// Worker pulls work items off the queue and acks the handled ones. Items
// whose handler fails stay unacked and come back after the visibility window.
type Worker struct {
	source  Source
	handle  HandleFunc
	cfg     Config
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewWorker creates a worker; a nil handle only logs the items
func NewWorker(source Source, handle HandleFunc, cfg Config, m *metrics.Metrics, log *logger.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	w := &Worker{source: source, handle: handle, cfg: cfg, metrics: m, log: log}
	if w.handle == nil {
		w.handle = w.logItem
	}
	return w
}

// Run consumes until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	if err := w.source.EnsureQueue(ctx, w.cfg.Queue); err != nil {
		return fmt.Errorf("failed to ensure queue %s: %w", w.cfg.Queue, err)
	}

	w.log.Info("worker started", "queue", w.cfg.Queue, "batch_size", w.cfg.BatchSize)
	for {
		n, err := w.poll(ctx)
		if ctx.Err() != nil {
			w.log.Info("worker stopping", "queue", w.cfg.Queue)
			return nil
		}
		if err != nil {
			w.log.Error("receive failed", "queue", w.cfg.Queue, "error", err)
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.Backoff):
			}
		}
	}
}

// poll handles one batch and returns its size
func (w *Worker) poll(ctx context.Context) (int, error) {
	msgs, err := w.source.Receive(ctx, w.cfg.Queue, w.cfg.BatchSize, w.cfg.Block)
	if err != nil {
		return 0, err
	}

	for _, msg := range msgs {
		item := models.WorkItem{BlobName: msg.Body, EnqueuedAt: msg.EnqueuedAt}
		log := w.log.With("message_id", msg.ID, "blob", item.BlobName, "redelivered", msg.Redelivered)

		err := w.handle(ctx, item)
		w.metrics.WorkItem(err)
		if err != nil {
			log.Warn("work item failed, leaving it for redelivery", "error", err)
			continue
		}

		if err := w.source.Ack(ctx, w.cfg.Queue, msg); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("ack failed", "error", err)
		}
	}
	return len(msgs), nil
}

func (w *Worker) logItem(ctx context.Context, item models.WorkItem) error {
	w.log.Info("image ready for analysis",
		"blob", item.BlobName,
		"queued_for", time.Since(item.EnqueuedAt).Round(time.Millisecond),
	)
	return nil
}
