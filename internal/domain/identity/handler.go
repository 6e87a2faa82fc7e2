package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinsight/clinsight/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/me", h.Me)
}

// Me returns the caller's profile, creating a doctor profile on first
// sign-in.
func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}

	profile, err := h.svc.Profile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		profile, err = h.svc.EnsureProfile(ctx, userID, "", "")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profile)
}
