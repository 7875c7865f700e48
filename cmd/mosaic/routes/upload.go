package routes

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mosaic/creator/cmd/mosaic/container"
	"github.com/mosaic/creator/cmd/mosaic/handlers"
	"github.com/mosaic/creator/cmd/mosaic/middleware"
	commonmw "github.com/mosaic/creator/common/middleware"
)

// RegisterUploadRoutes registers the upload endpoint
func RegisterUploadRoutes(e *echo.Echo, c *container.Container) {
	cfg := c.Components.Config
	h := handlers.NewUploadHandler(c.Pipeline, c.Policy, c.Components.Logger)

	mw := []echo.MiddlewareFunc{middleware.RequireSession()}
	if c.Components.RateLimiter != nil {
		mw = append(mw, commonmw.UploadRateLimitMiddleware(
			c.Components.RateLimiter,
			cfg.Upload.RateLimit,
			cfg.Upload.RateWindow,
			middleware.SessionUserID,
		))
	}
	if cfg.Upload.MaxBytes > 0 {
		mw = append(mw, echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
			Limit: formatBytes(cfg.Upload.MaxBytes),
		}))
	}

	e.POST("/upload", h.Upload, mw...) // POST /upload
}

// formatBytes renders n exactly in the unit syntax echo's BodyLimit parses
func formatBytes(n int64) string {
	switch {
	case n%(1<<30) == 0:
		return fmt.Sprintf("%dG", n>>30)
	case n%(1<<20) == 0:
		return fmt.Sprintf("%dM", n>>20)
	case n%(1<<10) == 0:
		return fmt.Sprintf("%dK", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
