// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// devSessionSecret lets local development run without a .env file. It is
// rejected in production.
const devSessionSecret = "dev-session-secret-do-not-use-in-production!!"

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL of this API.
	BaseURL string

	// FrontendBaseURL is the member portal SPA origin. Password reset links
	// point here.
	FrontendBaseURL string

	// CORSOrigins lists the origins allowed to make credentialed requests.
	CORSOrigins []string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// MigrationsPath is the directory holding the SQL migrations applied
	// at startup.
	MigrationsPath string

	// Auth holds authentication and account-security settings.
	Auth AuthConfig

	// Cookie holds attributes applied to the session and CSRF cookies.
	Cookie CookieConfig

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionSecret is the HMAC key that signs session credentials.
	SessionSecret string

	// SessionTTL is how long a session credential stays valid.
	SessionTTL time.Duration

	// BcryptCost is the adaptive cost factor for password hashes.
	BcryptCost int

	// LoginMaxAttempts wrong passwords trigger a LoginLockout window.
	LoginMaxAttempts int
	LoginLockout     time.Duration

	// VerifyMaxAttempts wrong codes trigger a VerifyLockout window.
	VerifyMaxAttempts int
	VerifyLockout     time.Duration

	// VerificationCodeTTL is how long an emailed verification code is valid.
	VerificationCodeTTL time.Duration

	// ResetTokenTTL is how long a password reset link is valid.
	ResetTokenTTL time.Duration

	// LogoutEverywhere makes logout bump the account's session epoch,
	// revoking every outstanding credential, not just the caller's cookie.
	LogoutEverywhere bool

	// UnverifiedRetention is how long an unverified account survives before
	// the cleanup job purges it. CleanupInterval is how often it runs.
	UnverifiedRetention time.Duration
	CleanupInterval     time.Duration
}

// CookieConfig holds attributes for cookies the API sets.
type CookieConfig struct {
	// Secure forces the Secure attribute even on plain HTTP requests.
	Secure bool

	// SameSite is "strict", "lax" or "none".
	SameSite string
}

// SMTPConfig holds outbound mail settings. Mail is disabled when Host is
// empty.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the envelope and header sender address.
	From string

	// Encryption is "starttls", "ssl" or "none". Port 465 defaults to "ssl".
	Encryption string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	env := getEnv("ENV", "development")
	prod := isProductionEnv(env)

	sameSiteDefault := "lax"
	if prod {
		sameSiteDefault = "strict"
	}

	frontend := getEnv("FRONTEND_BASE_URL", "http://localhost:5173")
	smtpPort := getEnvInt("SMTP_PORT", 587)
	smtpEncryption := "starttls"
	if smtpPort == 465 {
		smtpEncryption = "ssl"
	}

	cfg := &Config{
		Env:             env,
		Port:            getEnvInt("PORT", 8080),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		FrontendBaseURL: strings.TrimRight(frontend, "/"),
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{frontend}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "portal"),
			Password:        getEnv("DB_PASSWORD", "portal"),
			Name:            getEnv("DB_NAME", "portal"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Auth: AuthConfig{
			SessionSecret:       getEnv("SESSION_SECRET", ""),
			SessionTTL:          getEnvDuration("SESSION_TTL", 72*time.Hour),
			BcryptCost:          getEnvInt("BCRYPT_COST", 10),
			LoginMaxAttempts:    getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginLockout:        getEnvDuration("LOGIN_LOCKOUT", 10*time.Minute),
			VerifyMaxAttempts:   getEnvInt("VERIFY_MAX_ATTEMPTS", 5),
			VerifyLockout:       getEnvDuration("VERIFY_LOCKOUT", 10*time.Minute),
			VerificationCodeTTL: getEnvDuration("VERIFICATION_CODE_TTL", 24*time.Hour),
			ResetTokenTTL:       getEnvDuration("RESET_TOKEN_TTL", time.Hour),
			LogoutEverywhere:    getEnvBool("LOGOUT_EVERYWHERE", false),
			UnverifiedRetention: getEnvDuration("UNVERIFIED_RETENTION", 30*24*time.Hour),
			CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour),
		},

		Cookie: CookieConfig{
			Secure:   getEnvBool("COOKIE_SECURE", prod),
			SameSite: strings.ToLower(getEnv("COOKIE_SAMESITE", sameSiteDefault)),
		},

		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       smtpPort,
			Username:   getEnv("SMTP_USER", ""),
			Password:   getEnv("SMTP_PASS", ""),
			From:       getEnv("EMAIL_FROM", "no-reply@example.com"),
			Encryption: strings.ToLower(getEnv("SMTP_ENCRYPTION", smtpEncryption)),
		},
	}

	if prod {
		if cfg.Auth.SessionSecret == "" {
			return nil, fmt.Errorf("SESSION_SECRET is required in production")
		}
		if len(cfg.Auth.SessionSecret) < 32 {
			return nil, fmt.Errorf("SESSION_SECRET must be at least 32 characters in production")
		}
	}

	if cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = devSessionSecret
	}

	switch cfg.Cookie.SameSite {
	case "strict", "lax", "none":
	default:
		return nil, fmt.Errorf("COOKIE_SAMESITE must be strict, lax or none, got %q", cfg.Cookie.SameSite)
	}
	if cfg.Cookie.SameSite == "none" && !cfg.Cookie.Secure {
		return nil, fmt.Errorf("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}

	if cfg.Auth.LoginMaxAttempts < 1 || cfg.Auth.VerifyMaxAttempts < 1 {
		return nil, fmt.Errorf("lockout thresholds must be at least 1")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return isProductionEnv(c.Env)
}

// isProductionEnv is case-insensitive to catch variants like "Production"
// and "prod".
func isProductionEnv(env string) bool {
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", "false", ...) or returns
// the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "720h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, trimming blanks.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
