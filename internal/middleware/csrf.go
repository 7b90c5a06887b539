package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// csrfTokenLength is the number of random bytes in a CSRF token (32 bytes = 64 hex chars).
const csrfTokenLength = 32

// CSRFCookieName is the cookie holding the CSRF token. It is readable by
// the SPA so it can echo the value back in CSRFHeaderName.
const CSRFCookieName = "portal_csrf"

// CSRFHeaderName is the header the SPA sends the CSRF token in.
const CSRFHeaderName = "X-CSRF-Token"

// csrfContextKey stores the request's CSRF token in the Echo context.
const csrfContextKey = "csrf_token"

// CSRF returns middleware that implements the double-submit cookie pattern
// for CSRF protection on all state-changing requests (POST, PUT, PATCH, DELETE).
//
// How it works:
//  1. On every request, if no CSRF cookie exists, generate one and set it.
//  2. On mutating requests, compare the cookie value with the X-CSRF-Token
//     header in constant time.
//  3. If they don't match, reject with 403 Forbidden.
//
// Requests that present only an Authorization: Bearer credential and no
// cookies are exempt. A browser never attaches that header cross-site, so
// such requests cannot be forged.
func CSRF(policy CookiePolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			cookie, err := req.Cookie(CSRFCookieName)
			cookieToken := ""
			if err == nil {
				cookieToken = cookie.Value
			}

			if cookieToken == "" {
				token, genErr := generateCSRFToken()
				if genErr != nil {
					return apperror.NewInternal(genErr)
				}
				setCSRFCookie(c, policy, token)
				c.Set(csrfContextKey, token)
			} else {
				c.Set(csrfContextKey, cookieToken)
			}

			if isSafeMethod(req.Method) {
				return next(c)
			}

			if BearerToken(c) != "" && len(req.Cookies()) == 0 {
				return next(c)
			}

			// A freshly generated token was never seen by the client, so a
			// mutating request without the cookie always fails here.
			submitted := req.Header.Get(CSRFHeaderName)
			if submitted == "" || cookieToken == "" ||
				subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
				return apperror.NewForbidden("invalid or missing CSRF token")
			}

			return next(c)
		}
	}
}

// CSRFTokenHandler serves GET /api/csrf-token so the SPA can prime the
// cookie and read the value in one round trip.
func CSRFTokenHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"csrfToken": GetCSRFToken(c)})
}

// setCSRFCookie writes the CSRF cookie. It is deliberately not HttpOnly.
func setCSRFCookie(c echo.Context, policy CookiePolicy, token string) {
	c.SetCookie(&http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   policy.SecureFor(c.Request()),
		SameSite: policy.SameSite,
	})
}

// isSafeMethod returns true for HTTP methods that should not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// generateCSRFToken generates a cryptographically random hex-encoded token.
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetCSRFToken retrieves the CSRF token from the Echo context.
func GetCSRFToken(c echo.Context) string {
	if token, ok := c.Get(csrfContextKey).(string); ok {
		return token
	}
	return ""
}
