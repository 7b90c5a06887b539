package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/middleware"
)

// SessionCookieName is the HttpOnly cookie carrying the session credential.
const SessionCookieName = "portal_session"

// getSessionToken reads the credential from the session cookie, falling back
// to an Authorization: Bearer header for non-browser clients.
func getSessionToken(c echo.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return middleware.BearerToken(c)
}

// setSessionCookie binds the credential to the response. The cookie expires
// with the token itself.
func setSessionCookie(c echo.Context, policy middleware.CookiePolicy, issued IssuedSession) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    issued.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   policy.SecureFor(c.Request()),
		SameSite: policy.SameSite,
		Expires:  issued.ExpiresAt,
	})
}

// clearSessionCookie removes the session cookie. The attributes must match
// the ones it was set with or browsers keep the original.
func clearSessionCookie(c echo.Context, policy middleware.CookiePolicy) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   policy.SecureFor(c.Request()),
		SameSite: policy.SameSite,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
