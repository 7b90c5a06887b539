// Package main is the entry point for the member portal API. It loads
// configuration, connects to MariaDB and Redis, applies migrations, wires
// the application and serves HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carelinkhealth/portal/internal/app"
	"github.com/carelinkhealth/portal/internal/config"
	"github.com/carelinkhealth/portal/internal/database"
	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/plugins/audit"
	"github.com/carelinkhealth/portal/internal/plugins/auth"
	"github.com/carelinkhealth/portal/internal/plugins/smtp"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting portal API",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MariaDB ---
	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	// --- Mail ---
	mail := smtp.NewMailService(smtp.Settings{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.SMTP.From,
		FromName:    "Member Portal",
		Encryption:  cfg.SMTP.Encryption,
	})
	if !mail.IsConfigured(ctx) {
		slog.Warn("SMTP is not configured; verification and reset emails will not be sent")
	}
	notifier := auth.NewMailNotifier(mail, cfg.FrontendBaseURL, cfg.Auth.VerificationCodeTTL, cfg.Auth.ResetTokenTTL)

	// --- Create Application ---
	application, err := app.New(cfg, app.Deps{
		Users:      auth.NewUserRepository(db),
		Events:     audit.NewSecurityEventRepository(db),
		RateLimits: middleware.NewRedisRateLimitStore(rdb),
		Notifier:   notifier,
		DB:         db,
		Redis:      rdb,
	})
	if err != nil {
		slog.Error("failed to build application", slog.Any("error", err))
		os.Exit(1)
	}
	application.RegisterRoutes()

	go application.RunBackground(ctx)

	// --- Graceful Shutdown ---
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", slog.Any("error", err))
	}

	// Let queued verification and reset emails finish.
	notifier.Wait()
	slog.Info("server stopped")
}

// setupLogging configures the global slog logger. Development uses text
// format at debug level; other environments use JSON at LOG_LEVEL.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
