package chat

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
	api.POST("/chat", h.Send)
	api.GET("/chat/history", h.History)
	api.POST("/chat/note", h.GenerateNote)
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	reply, err := h.svc.Send(c.Request().Context(), userID, req.Text)
	if err != nil {
		if errors.Is(err, ErrAssistantUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "assistant unavailable")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, reply)
}

func (h *Handler) History(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	history, err := h.svc.History(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if history == nil {
		history = []*ChatMessage{}
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) GenerateNote(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	note, err := h.svc.GenerateNote(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, ErrAssistantUnavailable) {
			return echo.NewHTTPError(http.StatusBadGateway, "assistant unavailable")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"note": note})
}
