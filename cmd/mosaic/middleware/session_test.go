package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaic/creator/cmd/mosaic/models"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/session"
)

type brokenStore struct {
	session.Store
}

func (brokenStore) Get(ctx context.Context, id string) (*session.Session, error) {
	return nil, errors.New("connection refused")
}

func newEcho(store session.Store) *echo.Echo {
	e := echo.New()
	e.Use(LoadSession(store, logger.Discard()))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, SessionUserID(c))
	})
	e.GET("/private", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireSession())
	return e
}

func serve(e *echo.Echo, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLoadSession_AttachesLiveSession(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	require.NoError(t, store.Put(context.Background(), &session.Session{ID: "s1", UserID: "u1"}))
	e := newEcho(store)

	rec := serve(e, "/whoami", &http.Cookie{Name: CookieName, Value: "s1"})

	assert.Equal(t, "u1", rec.Body.String())
}

func TestLoadSession_UnknownSessionClearsCookie(t *testing.T) {
	e := newEcho(session.NewMemoryStore(time.Hour))

	rec := serve(e, "/whoami", &http.Cookie{Name: CookieName, Value: "gone"})

	assert.Empty(t, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestLoadSession_StoreFailureIsAnonymous(t *testing.T) {
	e := newEcho(brokenStore{})

	rec := serve(e, "/private", &http.Cookie{Name: CookieName, Value: "s1"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRequireSession(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	require.NoError(t, store.Put(context.Background(), &session.Session{ID: "s1", UserID: "u1"}))
	e := newEcho(store)

	assert.Equal(t, http.StatusUnauthorized, serve(e, "/private", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "/private", &http.Cookie{Name: CookieName, Value: "s1"}).Code)
}

func TestStartAndEndSession(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	e := echo.New()
	user := &models.User{ID: "u1", Email: "ada@example.com", FederatedID: "108234"}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, StartSession(c, store, user, time.Hour, true))

	sess := GetSession(c)
	require.True(t, sess.Authenticated())
	assert.Equal(t, "ada@example.com", sess.Email)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sess.ID, cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	stored, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	require.NoError(t, EndSession(c, store))
	assert.Nil(t, GetSession(c))
	_, err = store.Get(context.Background(), sess.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestEndSession_Anonymous(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.NoError(t, EndSession(c, session.NewMemoryStore(time.Hour)))
}
