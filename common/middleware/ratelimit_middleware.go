package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/common/ratelimit"
)

// KeyFunc extracts the rate limit subject from the request. An empty key
// skips the check.
type KeyFunc func(c echo.Context) string

// UploadRateLimitMiddleware limits uploads per user within a fixed window.
// Redis failures let the request through (fail open for availability).
func UploadRateLimitMiddleware(limiter *ratelimit.RateLimiter, limit int64, window time.Duration, key KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limit <= 0 {
				return next(c)
			}

			userID := key(c)
			if userID == "" {
				return next(c)
			}

			result, err := limiter.CheckUploadLimit(c.Request().Context(), userID, limit, window)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "upload_rate_limit_exceeded",
					"message": "You have exceeded your upload quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              fmt.Sprintf("%d seconds", int64(window/time.Second)),
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
