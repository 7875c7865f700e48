package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaic/creator/cmd/mosaic-worker/worker"
	"github.com/mosaic/creator/common/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The worker only touches the queue
	components, err := bootstrap.Setup(ctx, "mosaic-worker",
		bootstrap.WithoutDB(),
		bootstrap.WithoutObjectStore(),
		bootstrap.WithoutSessions(),
		bootstrap.WithoutIdentity(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	source, ok := components.Queue.(worker.Source)
	if !ok {
		components.Logger.Error("queue driver cannot be consumed", "driver", components.Config.Queue.Driver)
		os.Exit(1)
	}

	w := worker.NewWorker(source, nil, worker.Config{
		Queue:     components.Config.Queue.Name,
		BatchSize: 10,
		Block:     5 * time.Second,
		Backoff:   time.Second,
	}, components.Metrics, components.Logger)

	if err := w.Run(ctx); err != nil {
		components.Logger.Error("worker failed", "error", err)
		_ = components.Shutdown(context.Background())
		os.Exit(1)
	}
	components.Logger.Info("mosaic-worker stopped")
}
