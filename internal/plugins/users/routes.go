package users

import (
	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// RegisterRoutes sets up the account administration routes. Every route
// requires a session ranked co_admin or higher.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService, cookies middleware.CookiePolicy) {
	g := e.Group("/api/users",
		auth.RequireAuth(authService, cookies),
		auth.RequireAtLeast(rbac.RoleCoAdmin),
	)

	g.GET("", h.List)
	g.PATCH("/:id/role", h.ChangeRole)
}
