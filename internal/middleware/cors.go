package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the exact origins (scheme://host[:port]) the SPA
	// is served from. "*" admits any origin but disables credentials.
	AllowedOrigins []string

	// AllowCredentials lets the browser attach the session and CSRF cookies
	// to cross-origin requests.
	AllowCredentials bool
}

// Preflight answers are the same for every allowed origin, so the header
// values are joined once.
var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions,
	}, ", ")
	corsAllowHeaders = strings.Join([]string{
		echo.HeaderContentType, echo.HeaderAuthorization, CSRFHeaderName,
	}, ", ")
	corsExposeHeaders = strings.Join([]string{
		"Retry-After",
	}, ", ")
)

// CORS returns middleware that lets the member portal SPA call the API from
// its own origin. Requests from unlisted origins pass through without CORS
// headers and the browser withholds the response.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			origins[o] = true
		}
	}

	credentials := cfg.AllowCredentials
	if wildcard && credentials {
		slog.Warn("CORS allows every origin; credentials are disabled. List explicit origins to send cookies.")
		credentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			if origin == "" {
				return next(c)
			}

			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if !wildcard && !origins[origin] {
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if credentials {
				h.Set(echo.HeaderAccessControlAllowCredentials, "true")
			}

			if req.Method == http.MethodOptions && req.Header.Get(echo.HeaderAccessControlRequestMethod) != "" {
				h.Set(echo.HeaderAccessControlAllowMethods, corsAllowMethods)
				h.Set(echo.HeaderAccessControlAllowHeaders, corsAllowHeaders)
				h.Set(echo.HeaderAccessControlMaxAge, "3600")
				return c.NoContent(http.StatusNoContent)
			}

			h.Set(echo.HeaderAccessControlExposeHeaders, corsExposeHeaders)
			return next(c)
		}
	}
}
