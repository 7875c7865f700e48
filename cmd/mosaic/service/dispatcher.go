package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
)

// Dispatcher runs post-acknowledgment work on a bounded pool. Jobs are
// detached from the request that submitted them and can only be stopped
// by their own timeouts; Drain waits for all of them.
type Dispatcher struct {
	group   *errgroup.Group
	metrics *metrics.Metrics
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher running at most workers jobs at once
func NewDispatcher(workers int, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	g := new(errgroup.Group)
	g.SetLimit(workers)
	return &Dispatcher{group: g, metrics: m, log: log}
}

// Submit schedules job with a context detached from ctx's cancellation but
// keeping its values. It blocks while the pool is full and reports false
// once the dispatcher is draining.
func (d *Dispatcher) Submit(ctx context.Context, job func(context.Context)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	detached := context.WithoutCancel(ctx)
	d.group.Go(func() error {
		if d.metrics != nil {
			d.metrics.DispatchInflight.Inc()
			defer d.metrics.DispatchInflight.Dec()
		}
		job(detached)
		return nil
	})
	return true
}

// Drain stops accepting jobs and waits for the running ones, or for ctx
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.log.Warn("dispatcher drain interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}
