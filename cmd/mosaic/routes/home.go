package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/container"
	"github.com/mosaic/creator/cmd/mosaic/handlers"
)

// RegisterHomeRoutes registers the home view
func RegisterHomeRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHomeHandler(c.Gallery, c.Components.Logger)

	e.GET("/", h.Home) // GET /
}
