package analytics

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
	api.GET("/analytics/dashboard", h.Dashboard)
	api.GET("/analytics/admin", h.Admin)
}

func (h *Handler) Dashboard(c echo.Context) error {
	snap, err := h.svc.DashboardSnapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) Admin(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	snap, err := h.svc.AdminSnapshot(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, "admin role required")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap)
}
