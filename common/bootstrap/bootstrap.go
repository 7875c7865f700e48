package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

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

// memoryQueueCapacity bounds the in-process queue driver
const memoryQueueCapacity = 10000

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (components *Components, err error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components = &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	if !options.skipIdentity {
		if err := cfg.ValidateIdentity(); err != nil {
			return nil, err
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}
	log := components.Logger

	log.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// Release whatever was initialized if a later step fails
	defer func() {
		if err != nil {
			_ = components.Shutdown(ctx)
			components = nil
		}
	}()

	components.Metrics = metrics.New()

	// 3. Initialize database (if not skipped)
	if !options.skipDB && cfg.Database.Driver == "postgres" {
		log.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			log.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Initialize redis when any driver needs it
	if needsRedis(cfg, options) {
		log.Info("connecting to redis", "addr", cfg.RedisAddr())
		raw := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		components.Redis = rediscommon.NewClient(raw, log)
		components.addCleanup(func() error {
			log.Info("closing redis connection")
			return components.Redis.Close()
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := components.Redis.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	// 5. Initialize queue
	log.Info("initializing queue", "driver", cfg.Queue.Driver, "queue", cfg.Queue.Name)
	switch cfg.Queue.Driver {
	case "redis":
		q := queue.NewRedisQueue(components.Redis, cfg.Queue.Group, cfg.Queue.Visibility)
		components.Queue, components.Consumer = q, q
	case "memory":
		q := queue.NewMemoryQueue(cfg.Queue.Visibility, memoryQueueCapacity, log)
		components.Queue, components.Consumer = q, q
	default:
		return nil, fmt.Errorf("unknown queue driver: %s", cfg.Queue.Driver)
	}
	components.addCleanup(func() error {
		log.Info("closing queue")
		return components.Queue.Close()
	})

	// 6. Initialize object store (if not skipped)
	if !options.skipObjectStore {
		components.ObjectStore, err = newObjectStore(ctx, cfg.ObjectStore, log)
		if err != nil {
			return nil, err
		}
	}

	// 7. Initialize sessions and the upload limiter (if not skipped)
	if !options.skipSessions {
		switch cfg.Identity.SessionDriver {
		case "redis":
			components.Sessions = session.NewRedisStore(components.Redis, cfg.Identity.SessionTTL)
		case "memory":
			components.Sessions = session.NewMemoryStore(cfg.Identity.SessionTTL)
		default:
			return nil, fmt.Errorf("unknown session driver: %s", cfg.Identity.SessionDriver)
		}

		if cfg.Upload.RateLimit > 0 {
			components.RateLimiter = ratelimit.NewRateLimiter(components.Redis, log)
		}
	}

	// 8. Initialize telemetry (if not skipped)
	if !options.skipTelemetry && (cfg.Telemetry.EnablePprof || cfg.Telemetry.EnableMetrics) {
		log.Info("initializing telemetry")
		pprofPort, metricsPort := 0, 0
		if cfg.Telemetry.EnablePprof {
			pprofPort = cfg.Telemetry.PprofPort
		}
		if cfg.Telemetry.EnableMetrics {
			metricsPort = cfg.Telemetry.MetricsPort
		}
		components.Telemetry = telemetry.New(pprofPort, metricsPort, components.Metrics.Registry, log)

		if err := components.Telemetry.Start(ctx); err != nil {
			// Don't fail startup if telemetry fails
			log.Warn("failed to start telemetry", "error", err)
		}
		components.addCleanup(func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return components.Telemetry.Shutdown(shutdownCtx)
		})
	}

	log.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"object_store", cfg.ObjectStore.Driver,
		"queue", cfg.Queue.Driver,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}

func needsRedis(cfg *config.Config, o *options) bool {
	if cfg.Queue.Driver == "redis" {
		return true
	}
	if o.skipSessions {
		return false
	}
	return cfg.Identity.SessionDriver == "redis" || cfg.Upload.RateLimit > 0
}

func newObjectStore(ctx context.Context, cfg config.ObjectStoreConfig, log *logger.Logger) (objectstore.Store, error) {
	log.Info("initializing object store", "driver", cfg.Driver, "container", cfg.Container)

	urls := objectstore.URLBuilder{Scheme: cfg.PublicScheme, Account: cfg.PublicAccount, Domain: cfg.PublicDomain}
	switch cfg.Driver {
	case "s3":
		store, err := objectstore.NewS3Store(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 object store: %w", err)
		}
		return store, nil
	case "local":
		store, err := objectstore.NewLocalStore(cfg.LocalRoot, urls, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create local object store: %w", err)
		}
		return store, nil
	case "memory":
		return objectstore.NewMemoryStore(urls), nil
	default:
		return nil, fmt.Errorf("unknown object store driver: %s", cfg.Driver)
	}
}
