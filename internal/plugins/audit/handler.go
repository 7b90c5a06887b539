package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for the security event log. Handlers are
// thin: bind request, call service, render response.
type Handler struct {
	service SecurityService
}

// NewHandler creates a new audit handler.
func NewHandler(service SecurityService) *Handler {
	return &Handler{service: service}
}

// ListEvents returns one page of events (GET /api/admin/security-events).
// Accepts ?type= to filter and ?page= to paginate.
func (h *Handler) ListEvents(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	result, err := h.service.ListEvents(c.Request().Context(), c.QueryParam("type"), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// EventTypes lists the filterable event types
// (GET /api/admin/security-events/types).
func (h *Handler) EventTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"types": EventTypes()})
}
