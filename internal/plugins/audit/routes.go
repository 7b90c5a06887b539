package audit

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the security event routes. The caller supplies the
// authentication and authorization middleware so this plugin stays
// independent of the auth plugin.
func RegisterRoutes(e *echo.Echo, h *Handler, guards ...echo.MiddlewareFunc) {
	g := e.Group("/api/admin/security-events", guards...)
	g.GET("", h.ListEvents)
	g.GET("/types", h.EventTypes)
}
