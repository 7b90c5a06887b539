package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated user's information.
const (
	contextKeySession = "auth_session"
	contextKeyUserID  = "auth_user_id"
)

// RequireAuth returns middleware that resolves the session credential and
// injects the session into the request context. Missing credentials fail
// with 401 unauthorized; rejected ones fail with the service's error
// (invalid_token or stale_session) and the stale cookie is cleared.
func RequireAuth(service AuthService, policy middleware.CookiePolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := getSessionToken(c)
			if token == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			session, err := service.ResolveSession(c.Request().Context(), token)
			if err != nil {
				if apperror.SafeCode(err) == http.StatusUnauthorized {
					clearSessionCookie(c, policy)
				}
				return err
			}

			c.Set(contextKeySession, session)
			c.Set(contextKeyUserID, session.UserID)

			return next(c)
		}
	}
}

// RequireRole returns middleware that admits only sessions the guard
// permits. Must run after RequireAuth.
func RequireRole(guard rbac.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session := GetSession(c)
			if session == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !guard.Permits(session.Role) {
				return apperror.NewForbidden("insufficient permissions")
			}
			return next(c)
		}
	}
}

// RequireAtLeast is shorthand for RequireRole(rbac.AtLeast(role)).
func RequireAtLeast(role rbac.Role) echo.MiddlewareFunc {
	return RequireRole(rbac.AtLeast(role))
}

// --- Exported getters for other plugins ---

// GetSession retrieves the authenticated session from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetSession(c echo.Context) *Session {
	session, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return session
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}
