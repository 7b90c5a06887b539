// Package app is the application bootstrap and dependency injection root.
// It builds the Echo instance, the shared middleware chain and every plugin
// service from the infrastructure handed in by main.go or by tests.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/carelinkhealth/portal/internal/config"
	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/plugins/audit"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/plugins/users"
)

// Deps is the infrastructure the application runs on. Production wires the
// MariaDB and Redis backed implementations; tests use the in-memory ones.
type Deps struct {
	Users      auth.UserRepository
	Events     audit.SecurityEventRepository
	RateLimits middleware.RateLimitStore
	Notifier   auth.Notifier

	// DB and Redis are only pinged by the health endpoint. Nil reports the
	// dependency as disabled.
	DB    *sql.DB
	Redis *redis.Client

	// Now is the clock for sessions and lockout windows. Defaults to
	// time.Now.
	Now func() time.Time
}

// App holds the configured Echo server and the services built on top of
// Deps.
type App struct {
	Config *config.Config
	Echo   *echo.Echo

	Auth     auth.AuthService
	Security audit.SecurityService
	Users    users.UserService

	deps    Deps
	cookies middleware.CookiePolicy
}

// New wires every service from deps and configures the Echo server with the
// global middleware chain and JSON error handling. Routes are added by
// RegisterRoutes.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if deps.Users == nil || deps.Events == nil || deps.RateLimits == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("app: repositories, rate limit store and notifier are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	sessions, err := auth.NewSessionIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, deps.Now)
	if err != nil {
		return nil, fmt.Errorf("creating session issuer: %w", err)
	}

	authService, err := auth.NewAuthService(deps.Users, sessions, deps.Notifier, auth.ServiceConfig{
		BcryptCost:          cfg.Auth.BcryptCost,
		LoginPolicy:         auth.LockoutPolicy{Threshold: cfg.Auth.LoginMaxAttempts, Duration: cfg.Auth.LoginLockout},
		VerifyPolicy:        auth.LockoutPolicy{Threshold: cfg.Auth.VerifyMaxAttempts, Duration: cfg.Auth.VerifyLockout},
		VerificationCodeTTL: cfg.Auth.VerificationCodeTTL,
		ResetTokenTTL:       cfg.Auth.ResetTokenTTL,
		LogoutEverywhere:    cfg.Auth.LogoutEverywhere,
	}, deps.Now)
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() keys the per-IP rate limits and is recorded on security
	// events, so only trust forwarding headers from private networks.
	middleware.TrustedProxies(e, middleware.DefaultTrustedProxies)

	a := &App{
		Config:   cfg,
		Echo:     e,
		Auth:     authService,
		Security: audit.NewSecurityService(deps.Events),
		Users:    users.NewUserService(deps.Users, deps.Now),
		deps:     deps,
		cookies:  middleware.NewCookiePolicy(cfg.Cookie.Secure, cfg.Cookie.SameSite),
	}

	a.setupMiddleware()
	e.HTTPErrorHandler = middleware.JSONErrorHandler

	return a, nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first, innermost (CSRF) runs last.
func (a *App) setupMiddleware() {
	// Must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())

	// The SPA is served from its own origin and sends cookies cross-origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.CORSOrigins,
		AllowCredentials: true,
	}))

	a.Echo.Use(middleware.CSRF(a.cookies))
}

// RunBackground starts the unverified-account retention job. It returns
// when ctx is cancelled.
func (a *App) RunBackground(ctx context.Context) {
	auth.RunUnverifiedCleanup(ctx, a.Auth, a.Config.Auth.UnverifiedRetention, a.Config.Auth.CleanupInterval)
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting portal API",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
