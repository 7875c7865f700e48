package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/ratelimit"
	rediscommon "github.com/mosaic/creator/common/redis"
)

func newLimitedEcho(t *testing.T, mr *miniredis.Miniredis, limit int64) *echo.Echo {
	t.Helper()
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = raw.Close() })
	log := logger.Discard()
	limiter := ratelimit.NewRateLimiter(rediscommon.NewClient(raw, log), log)

	e := echo.New()
	key := func(c echo.Context) string { return c.Request().Header.Get("X-User") }
	e.POST("/upload", func(c echo.Context) error {
		return c.String(http.StatusAccepted, "OK.. uploading")
	}, UploadRateLimitMiddleware(limiter, limit, time.Minute, key))
	return e
}

func post(e *echo.Echo, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUploadRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newLimitedEcho(t, mr, 2)

	assert.Equal(t, http.StatusAccepted, post(e, "u1").Code)
	assert.Equal(t, http.StatusAccepted, post(e, "u1").Code)

	rec := post(e, "u1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "upload_rate_limit_exceeded")

	// Requests without a subject are not counted
	assert.Equal(t, http.StatusAccepted, post(e, "").Code)
}

func TestUploadRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	e := newLimitedEcho(t, mr, 1)
	mr.Close()

	assert.Equal(t, http.StatusAccepted, post(e, "u1").Code)
	assert.Equal(t, http.StatusAccepted, post(e, "u1").Code)
}
