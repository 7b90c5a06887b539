package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	t.Setenv("ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Auth.SessionSecret != devSessionSecret {
		t.Error("expected dev session secret fallback")
	}
	if cfg.Auth.SessionTTL != 72*time.Hour {
		t.Errorf("expected 72h session TTL, got %s", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.LoginMaxAttempts != 5 || cfg.Auth.LoginLockout != 10*time.Minute {
		t.Errorf("unexpected login lockout policy: %d/%s", cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginLockout)
	}
	if cfg.Auth.BcryptCost != 10 {
		t.Errorf("expected bcrypt cost 10, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Cookie.SameSite != "lax" || cfg.Cookie.Secure {
		t.Errorf("expected relaxed dev cookies, got samesite=%s secure=%v", cfg.Cookie.SameSite, cfg.Cookie.Secure)
	}
	if cfg.Auth.LogoutEverywhere {
		t.Error("expected logout everywhere to default off")
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("SESSION_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing secret in production")
	}

	t.Setenv("SESSION_SECRET", "too-short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret in production")
	}
}

func TestLoad_ProductionCookieDefaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_SECRET", strings.Repeat("s", 40))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Cookie.Secure {
		t.Error("expected secure cookies in production")
	}
	if cfg.Cookie.SameSite != "strict" {
		t.Errorf("expected strict SameSite in production, got %s", cfg.Cookie.SameSite)
	}
}

func TestLoad_RejectsSameSiteNoneWithoutSecure(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("COOKIE_SAMESITE", "none")
	t.Setenv("COOKIE_SECURE", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for SameSite=None without Secure")
	}
}

func TestLoad_LockoutOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("VERIFY_LOCKOUT", "15m")
	t.Setenv("LOGOUT_EVERYWHERE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.LoginMaxAttempts != 3 {
		t.Errorf("expected 3, got %d", cfg.Auth.LoginMaxAttempts)
	}
	if cfg.Auth.VerifyLockout != 15*time.Minute {
		t.Errorf("expected 15m, got %s", cfg.Auth.VerifyLockout)
	}
	if !cfg.Auth.LogoutEverywhere {
		t.Error("expected logout everywhere enabled")
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("CORS_ORIGINS", " https://a.example.org , ,https://b.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.org" {
		t.Errorf("unexpected origins: %v", cfg.CORSOrigins)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "u", Password: "p@ss:word", Name: "portal"}
	dsn := d.DSN()

	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("expected default port appended, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime, got %s", dsn)
	}

	d.dsnOverride = "override"
	if d.DSN() != "override" {
		t.Error("expected DATABASE_URL override to win")
	}
}
