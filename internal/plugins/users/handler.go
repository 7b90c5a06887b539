package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/plugins/audit"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
)

// Handler handles account administration requests.
type Handler struct {
	service UserService
	events  auth.SecurityEventLogger
}

// NewHandler creates a new users handler. events may be nil.
func NewHandler(service UserService, events auth.SecurityEventLogger) *Handler {
	return &Handler{service: service, events: events}
}

// List returns a page of accounts (GET /api/users?page=N).
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	result, err := h.service.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// ChangeRole sets an account's role (PATCH /api/users/:id/role).
func (h *Handler) ChangeRole(c echo.Context) error {
	var req ChangeRoleRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	session := auth.GetSession(c)
	change, err := h.service.ChangeRole(c.Request().Context(), session, c.Param("id"), req.Role)
	if err != nil {
		return err
	}

	if h.events != nil && change.From != change.To {
		_ = h.events.LogEvent(c.Request().Context(), audit.EventRoleChanged,
			change.User.ID, session.UserID, c.RealIP(), c.Request().UserAgent(),
			map[string]any{"from": change.From, "to": change.To})
	}

	return c.JSON(http.StatusOK, change)
}
