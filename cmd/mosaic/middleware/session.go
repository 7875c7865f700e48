package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/session"
)

// CookieName is the cookie carrying the session id
const CookieName = "mosaic_session"

// sessionKey is the echo context key holding the loaded *session.Session
const sessionKey = "session"

// LoadSession attaches the caller's session to the context when the cookie
// names a live one. Store failures degrade to an anonymous request.
func LoadSession(store session.Store, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			sess, err := store.Get(c.Request().Context(), cookie.Value)
			switch {
			case errors.Is(err, session.ErrNotFound):
				clearCookie(c, CookieName)
			case err != nil:
				log.WithContext(c.Request().Context()).Warn("session lookup failed", "error", err)
			default:
				c.Set(sessionKey, sess)
			}
			return next(c)
		}
	}
}

// RequireSession rejects requests without an authenticated session
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetSession(c).Authenticated() {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "login required",
				})
			}
			return next(c)
		}
	}
}

// GetSession returns the loaded session or nil
func GetSession(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionKey).(*session.Session)
	return sess
}

// SessionUserID returns the authenticated user's id, or "" when anonymous
func SessionUserID(c echo.Context) string {
	if sess := GetSession(c); sess.Authenticated() {
		return sess.UserID
	}
	return ""
}

// StartSession stores a new session for user and sets its cookie
func StartSession(c echo.Context, store session.Store, user *models.User, ttl time.Duration, secure bool) error {
	sess := &session.Session{
		ID:          session.NewID(),
		UserID:      user.ID,
		Email:       user.Email,
		FederatedID: user.FederatedID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Put(c.Request().Context(), sess); err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.Set(sessionKey, sess)
	return nil
}

// EndSession deletes the caller's session and expires its cookie
func EndSession(c echo.Context, store session.Store) error {
	clearCookie(c, CookieName)
	sess := GetSession(c)
	if sess == nil {
		return nil
	}
	c.Set(sessionKey, nil)
	return store.Delete(c.Request().Context(), sess.ID)
}

func clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
