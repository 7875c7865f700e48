package container

import (
	"fmt"

	"github.com/mosaic/creator/cmd/mosaic/repository"
	"github.com/mosaic/creator/cmd/mosaic/service"
	"github.com/mosaic/creator/common/bootstrap"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	Users repository.UserStore

	// Services
	Dispatcher *service.Dispatcher
	Pipeline   *service.Pipeline
	Policy     *service.UploadPolicy
	Provider   service.IdentityProvider
	Resolver   *service.IdentityResolver
	Gallery    *service.Gallery
}

// Option overrides a collaborator, mostly for tests
type Option func(*Container)

// WithIdentityProvider replaces the OAuth provider
func WithIdentityProvider(p service.IdentityProvider) Option {
	return func(c *Container) {
		c.Provider = p
	}
}

// WithUserStore replaces the user store selected by config
func WithUserStore(users repository.UserStore) Option {
	return func(c *Container) {
		c.Users = users
	}
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components, opts ...Option) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	c := &Container{Components: components}
	for _, opt := range opts {
		opt(c)
	}

	// Initialize repositories
	if c.Users == nil {
		switch {
		case cfg.Database.Driver == "memory":
			c.Users = repository.NewMemoryUserStore()
		case components.DB != nil:
			c.Users = repository.NewPostgresUserStore(components.DB, cfg.Database.UserTable, cfg.Database.Partition)
		default:
			return nil, fmt.Errorf("user store driver %q has no database connection", cfg.Database.Driver)
		}
	}

	if c.Provider == nil {
		c.Provider = service.NewOAuthProvider(cfg.Identity, nil)
	}

	// Initialize services (bottom-up: dependencies first)
	policy, err := service.NewUploadPolicy(cfg.Upload.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid upload policy: %w", err)
	}
	c.Policy = policy

	c.Dispatcher = service.NewDispatcher(cfg.Upload.DispatchWorkers, components.Metrics, log)

	c.Pipeline = service.NewPipeline(
		components.ObjectStore,
		components.Queue,
		c.Dispatcher,
		service.PipelineConfig{
			Container:           cfg.ObjectStore.Container,
			Queue:               cfg.Queue.Name,
			StoreControlTimeout: cfg.Timeouts.StoreControl,
			StoreWriteTimeout:   cfg.Timeouts.StoreWrite,
			EnqueueTimeout:      cfg.Timeouts.Enqueue,
		},
		components.Metrics,
		log,
	)

	c.Resolver = service.NewIdentityResolver(
		c.Provider,
		c.Users,
		service.ResolverConfig{
			TokenPolicy:          service.TokenPolicy(cfg.Identity.RefreshPolicy),
			TokenExchangeTimeout: cfg.Timeouts.TokenExchange,
			ProfileFetchTimeout:  cfg.Timeouts.ProfileFetch,
			UserStoreTimeout:     cfg.Timeouts.UserStore,
		},
		components.Metrics,
		log,
	)

	c.Gallery = service.NewGallery(components.ObjectStore, cfg.ObjectStore.Container, cfg.Timeouts.Listing, log)

	return c, nil
}
