package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mosaic/creator/common/logger"
)

// Telemetry serves pprof and prometheus endpoints on side ports
type Telemetry struct {
	log     *logger.Logger
	servers []*http.Server
}

// New creates telemetry components. A zero port disables that endpoint.
func New(pprofPort, metricsPort int, registry *prometheus.Registry, log *logger.Logger) *Telemetry {
	t := &Telemetry{log: log}

	if pprofPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		t.servers = append(t.servers, newServer(fmt.Sprintf("localhost:%d", pprofPort), mux))
	}

	if metricsPort > 0 && registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", MetricsHandler(registry))
		t.servers = append(t.servers, newServer(fmt.Sprintf(":%d", metricsPort), mux))
	}

	return t
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// MetricsHandler exposes a registry in the prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Start starts telemetry endpoints
func (t *Telemetry) Start(ctx context.Context) error {
	for _, srv := range t.servers {
		go func(srv *http.Server) {
			t.log.Info("telemetry server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.log.Error("telemetry server error", "addr", srv.Addr, "error", err)
			}
		}(srv)
	}
	return nil
}

// Shutdown stops all telemetry endpoints
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range t.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
