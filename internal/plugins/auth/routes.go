package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// RegisterRoutes sets up all auth-related routes under /api/auth. CSRF is
// applied globally by the app; this only adds per-IP rate limits and the
// session gates.
//
// Limits per IP: 100 registrations and 10 logins per 15 minutes, 5 emails
// per hour across forgot-password and resend-verification.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService, limits middleware.RateLimitStore) {
	g := e.Group("/api/auth")

	g.POST("/register", h.Register, middleware.RateLimit(limits, "register", 100, 15*time.Minute))
	g.POST("/login", h.Login, middleware.RateLimit(limits, "login", 10, 15*time.Minute))
	g.POST("/logout", h.Logout)

	emailLimit := middleware.RateLimit(limits, "email", 5, time.Hour)
	g.POST("/forgot-password", h.ForgotPassword, emailLimit)
	g.POST("/resend-verification", h.ResendVerification, emailLimit)
	g.POST("/reset-password", h.ResetPassword)

	g.GET("/verify-email", h.VerifyEmailInfo)
	g.POST("/verify-email", h.VerifyEmail)

	// Session required.
	requireAuth := RequireAuth(service, h.cookies)
	g.GET("/me", h.Me, requireAuth)
	g.GET("/permissions", h.Permissions, requireAuth)
	g.GET("/permissions/check", h.CheckPermission, requireAuth)
	g.GET("/permissions/table", h.PermissionsTable, requireAuth, RequireAtLeast(rbac.RoleCoAdmin))
}
