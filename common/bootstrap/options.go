package bootstrap

import (
	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/db"
	"github.com/mosaic/creator/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipDB          bool
	skipObjectStore bool
	skipSessions    bool
	skipIdentity    bool
	skipTelemetry   bool
	customLogger    *logger.Logger
	customConfig    *config.Config
	dbInitHook      func(*db.DB) error
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutObjectStore skips object store initialization
func WithoutObjectStore() Option {
	return func(o *options) {
		o.skipObjectStore = true
	}
}

// WithoutSessions skips session store initialization
func WithoutSessions() Option {
	return func(o *options) {
		o.skipSessions = true
	}
}

// WithoutIdentity skips the identity provider credential check. Used by
// processes that never serve a login.
func WithoutIdentity() Option {
	return func(o *options) {
		o.skipIdentity = true
	}
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithDBInitHook runs a custom function after DB initialization
// Useful for running migrations, seeding data, etc.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *options) {
		o.dbInitHook = hook
	}
}

func defaultOptions() *options {
	return &options{}
}
