package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/middleware"
	"github.com/mosaic/creator/cmd/mosaic/service"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/session"
)

const (
	stateCookie = "mosaic_oauth_state"
	stateTTL    = 10 * time.Minute
	landingPath = "/"
)

// AuthHandler handles the federated login flow
type AuthHandler struct {
	provider      service.IdentityProvider
	resolver      *service.IdentityResolver
	sessions      session.Store
	sessionTTL    time.Duration
	secureCookies bool
	log           *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(provider service.IdentityProvider, resolver *service.IdentityResolver, sessions session.Store, sessionTTL time.Duration, secureCookies bool, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		provider:      provider,
		resolver:      resolver,
		sessions:      sessions,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		log:           log,
	}
}

// Login redirects to the provider's consent page
// GET /login
func (h *AuthHandler) Login(c echo.Context) error {
	state := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state))
}

// Callback resolves the authorization code into a user and starts a
// session. Every outcome lands on the home page; failures only in logs.
// GET /oauth2callback?code=...&state=...
func (h *AuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	log := h.log.WithContext(ctx)

	// The callback must answer a login this browser started
	cookie, err := c.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		log.Warn("oauth callback without state cookie")
		return c.Redirect(http.StatusFound, landingPath)
	}
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	if state := c.QueryParam("state"); state == "" || state != cookie.Value {
		log.Warn("oauth state mismatch")
		return c.Redirect(http.StatusFound, landingPath)
	}

	if errParam := c.QueryParam("error"); errParam != "" {
		log.Info("login declined at provider", "error", errParam)
		return c.Redirect(http.StatusFound, landingPath)
	}

	user, err := h.resolver.Resolve(ctx, c.QueryParam("code"))
	if err != nil {
		// The resolver logged the cause
		return c.Redirect(http.StatusFound, landingPath)
	}

	if err := middleware.StartSession(c, h.sessions, user, h.sessionTTL, h.secureCookies); err != nil {
		log.Error("session start failed", "user_id", user.ID, "error", err)
		return c.Redirect(http.StatusFound, landingPath)
	}

	log.Info("login complete", "user_id", user.ID)
	return c.Redirect(http.StatusFound, landingPath)
}

// Logout ends the session
// GET /logout
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := middleware.EndSession(c, h.sessions); err != nil {
		h.log.WithContext(c.Request().Context()).Warn("session delete failed", "error", err)
	}
	return c.Redirect(http.StatusFound, landingPath)
}
