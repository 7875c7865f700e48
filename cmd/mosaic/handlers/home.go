package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/middleware"
	"github.com/mosaic/creator/cmd/mosaic/service"
	"github.com/mosaic/creator/common/logger"
)

// Home view titles
const (
	TitleLanding = "Welcome to Mosaic Creator"
	TitleMain    = "Mosaic Creator - Main"
	TitleError   = "Mosaic Creator - Error"
)

// UserView is the session user as rendered
type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FederatedID string `json:"federated_id"`
}

// LandingView is rendered for anonymous visitors
type LandingView struct {
	Title string    `json:"title"`
	User  *UserView `json:"user"`
}

// MainView is rendered for logged-in users
type MainView struct {
	Title  string    `json:"title"`
	Images []string  `json:"images"`
	User   *UserView `json:"user"`
}

// HomeHandler builds the home page view model
type HomeHandler struct {
	gallery *service.Gallery
	log     *logger.Logger
}

// NewHomeHandler creates a new home handler
func NewHomeHandler(gallery *service.Gallery, log *logger.Logger) *HomeHandler {
	return &HomeHandler{gallery: gallery, log: log}
}

// Home returns the landing view, or the gallery for a logged-in user
// GET /
func (h *HomeHandler) Home(c echo.Context) error {
	sess := middleware.GetSession(c)
	if !sess.Authenticated() {
		return c.JSON(http.StatusOK, LandingView{Title: TitleLanding})
	}

	view := MainView{
		Title:  TitleMain,
		Images: []string{},
		User: &UserView{
			ID:          sess.UserID,
			Email:       sess.Email,
			FederatedID: sess.FederatedID,
		},
	}

	urls, err := h.gallery.URLs(c.Request().Context())
	if err != nil {
		// The page still renders, just without images
		view.Title = TitleError
	} else {
		view.Images = urls
	}

	return c.JSON(http.StatusOK, view)
}
