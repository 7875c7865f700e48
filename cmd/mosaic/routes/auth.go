package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/container"
	"github.com/mosaic/creator/cmd/mosaic/handlers"
)

// RegisterAuthRoutes registers the login flow
func RegisterAuthRoutes(e *echo.Echo, c *container.Container) {
	identity := c.Components.Config.Identity
	h := handlers.NewAuthHandler(
		c.Provider,
		c.Resolver,
		c.Components.Sessions,
		identity.SessionTTL,
		identity.SecureCookies,
		c.Components.Logger,
	)

	e.GET("/login", h.Login)             // GET /login
	e.GET("/oauth2callback", h.Callback) // GET /oauth2callback?code=...
	e.GET("/logout", h.Logout)           // GET /logout
}
