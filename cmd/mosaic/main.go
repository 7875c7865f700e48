package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mosaic/creator/cmd/mosaic/container"
	"github.com/mosaic/creator/cmd/mosaic/middleware"
	"github.com/mosaic/creator/cmd/mosaic/repository"
	"github.com/mosaic/creator/cmd/mosaic/routes"
	"github.com/mosaic/creator/common/bootstrap"
	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/db"
	"github.com/mosaic/creator/common/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("mosaic")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Bootstrap common components (DB, logger, redis, queue, object store, telemetry)
	components, err := bootstrap.Setup(ctx, "mosaic",
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			users := repository.NewPostgresUserStore(database, cfg.Database.UserTable, cfg.Database.Partition)
			return users.Migrate(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap mosaic: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("Failed to initialize service container", "error", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestContext())
	e.Use(middleware.RequestLogger(c.Components.Logger))
	e.Use(middleware.LoadSession(c.Components.Sessions, c.Components.Logger))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "mosaic",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterHomeRoutes(e, c)
	routes.RegisterAuthRoutes(e, c)
	routes.RegisterUploadRoutes(e, c)
}

// startServer blocks until a shutdown signal, then drains pending enqueues
func startServer(e *echo.Echo, c *container.Container) {
	log := c.Components.Logger

	srv := server.New("mosaic", c.Components.Config.Service.Port, e, log)
	srv.OnShutdown(c.Dispatcher.Drain)

	if err := srv.Start(); err != nil {
		log.Error("Server error", "error", err)
		_ = c.Components.Shutdown(context.Background())
		os.Exit(1)
	}
}
