package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/plugins/audit"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/plugins/users"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// healthPingTimeout bounds each dependency ping in the health check.
const healthPingTimeout = 2 * time.Second

// RegisterRoutes sets up all application routes. This is the single place
// where plugin routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Public Routes ---

	e.GET("/api/csrf-token", middleware.CSRFTokenHandler)
	e.GET("/api/health", a.health)

	// --- Plugin Routes ---

	events := a.Security

	authHandler := auth.NewHandler(a.Auth, a.cookies, events)
	auth.RegisterRoutes(e, authHandler, a.Auth, a.deps.RateLimits)

	usersHandler := users.NewHandler(a.Users, events)
	users.RegisterRoutes(e, usersHandler, a.Auth, a.cookies)

	auditHandler := audit.NewHandler(a.Security)
	audit.RegisterRoutes(e, auditHandler,
		auth.RequireAuth(a.Auth, a.cookies),
		auth.RequireAtLeast(rbac.RoleCoAdmin),
	)
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status    string    `json:"status"`
	DB        string    `json:"db"`
	Redis     string    `json:"redis"`
	Timestamp time.Time `json:"timestamp"`
}

// health pings MariaDB and Redis. Any failing dependency turns the response
// into a 503 so orchestrators stop routing traffic here.
func (a *App) health(c echo.Context) error {
	ctx := c.Request().Context()

	resp := healthResponse{Status: "ok", Timestamp: a.deps.Now().UTC()}

	resp.DB = "disabled"
	if a.deps.DB != nil {
		resp.DB = pingStatus(ctx, a.deps.DB.PingContext)
	}

	resp.Redis = "disabled"
	if a.deps.Redis != nil {
		resp.Redis = pingStatus(ctx, func(ctx context.Context) error {
			return a.deps.Redis.Ping(ctx).Err()
		})
	}

	code := http.StatusOK
	if resp.DB == "error" || resp.Redis == "error" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func pingStatus(ctx context.Context, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return "error"
	}
	return "ok"
}
