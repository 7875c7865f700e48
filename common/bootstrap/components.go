package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/db"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/metrics"
	"github.com/mosaic/creator/common/objectstore"
	"github.com/mosaic/creator/common/queue"
	"github.com/mosaic/creator/common/ratelimit"
	rediscommon "github.com/mosaic/creator/common/redis"
	"github.com/mosaic/creator/common/session"
	"github.com/mosaic/creator/common/telemetry"
)

// Components holds all initialized service dependencies
type Components struct {
	Config      *config.Config
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	DB          *db.DB // nil unless the user store driver is postgres
	Redis       *rediscommon.Client
	ObjectStore objectstore.Store
	Queue       queue.Queue
	Consumer    queue.Consumer
	Sessions    session.Store
	RateLimiter *ratelimit.RateLimiter // nil when uploads are not rate limited
	Telemetry   *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	c.cleanupFuncs = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}

	return nil
}

// addCleanup registers a cleanup function
func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
