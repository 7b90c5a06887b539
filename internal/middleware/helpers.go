package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// CookiePolicy carries the security attributes shared by every cookie the
// API sets (session and CSRF).
type CookiePolicy struct {
	// Secure forces the Secure attribute regardless of transport.
	Secure bool

	SameSite http.SameSite
}

// NewCookiePolicy builds a policy from config values. Unknown SameSite
// strings fall back to strict.
func NewCookiePolicy(secure bool, sameSite string) CookiePolicy {
	return CookiePolicy{Secure: secure, SameSite: ParseSameSite(sameSite)}
}

// SecureFor reports whether cookies on this request must carry the Secure
// attribute: always when forced, otherwise whenever the request arrived over
// TLS.
func (p CookiePolicy) SecureFor(req *http.Request) bool {
	return p.Secure || IsSecureRequest(req)
}

// ParseSameSite maps "strict", "lax" or "none" to the http constant.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// IsSecureRequest returns true if the request came in over TLS, either
// directly or via a TLS-terminating proxy that set X-Forwarded-Proto.
func IsSecureRequest(req *http.Request) bool {
	return req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "".
func BearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// statusFromError maps a handler error to the status the error handler will
// write.
func statusFromError(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperror.SafeCode(err)
}
