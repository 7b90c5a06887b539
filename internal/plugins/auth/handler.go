package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
	"github.com/carelinkhealth/portal/internal/middleware"
	"github.com/carelinkhealth/portal/internal/plugins/audit"
	"github.com/carelinkhealth/portal/internal/rbac"
)

// SecurityEventLogger records security events. Satisfied by
// audit.SecurityService.
type SecurityEventLogger interface {
	LogEvent(ctx context.Context, eventType, userID, actorID, ip, userAgent string, details map[string]any) error
}

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and render the response. No business
// logic lives here.
type Handler struct {
	service AuthService
	cookies middleware.CookiePolicy
	events  SecurityEventLogger
}

// NewHandler creates a new auth handler. events may be nil.
func NewHandler(service AuthService, cookies middleware.CookiePolicy, events SecurityEventLogger) *Handler {
	return &Handler{service: service, cookies: cookies, events: events}
}

// logEvent records a security event in the request path. A failed write is
// logged by the event service and never fails the request.
func (h *Handler) logEvent(c echo.Context, eventType, userID string, details map[string]any) {
	if h.events == nil {
		return
	}
	_ = h.events.LogEvent(c.Request().Context(), eventType, userID, "",
		c.RealIP(), c.Request().UserAgent(), details)
}

// message is the body of endpoints that only acknowledge.
func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"message": msg})
}

// Register creates an account (POST /api/auth/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	h.logEvent(c, audit.EventUserRegistered, user.ID, nil)

	return message(c, http.StatusCreated, "Registered. Please verify your email to log in.")
}

// Login checks credentials and sets the session cookie
// (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case apperror.IsType(err, apperror.TypeTooManyAttempts):
			h.logEvent(c, audit.EventLoginLocked, "", map[string]any{"email": NormalizeEmail(req.Email)})
		case apperror.IsType(err, apperror.TypeInvalidCredentials):
			h.logEvent(c, audit.EventLoginFailed, "", map[string]any{"email": NormalizeEmail(req.Email)})
		}
		return err
	}

	setSessionCookie(c, h.cookies, result.Session)
	h.logEvent(c, audit.EventLoginSuccess, result.User.ID, nil)

	return c.JSON(http.StatusOK, map[string]any{"user": result.User})
}

// Logout clears the session cookie (POST /api/auth/logout). It succeeds
// whether or not the caller presented a valid session.
func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var session *Session
	if token := getSessionToken(c); token != "" {
		if s, err := h.service.ResolveSession(ctx, token); err == nil {
			session = s
		}
	}

	if err := h.service.Logout(ctx, session); err != nil {
		return err
	}

	clearSessionCookie(c, h.cookies)
	if session != nil {
		h.logEvent(c, audit.EventLogout, session.UserID, nil)
	}

	return message(c, http.StatusOK, "Logged out")
}

// VerifyEmailInfo tells clients following an old link to enter the code
// instead (GET /api/auth/verify-email).
func (h *Handler) VerifyEmailInfo(c echo.Context) error {
	return message(c, http.StatusOK, "Enter the code we emailed you to verify.")
}

// VerifyEmail checks an emailed code (POST /api/auth/verify-email).
func (h *Handler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	already, err := h.service.VerifyEmail(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		return err
	}
	if already {
		return message(c, http.StatusOK, "Email already verified")
	}

	h.logEvent(c, audit.EventEmailVerified, "", map[string]any{"email": NormalizeEmail(req.Email)})

	return message(c, http.StatusOK, "Email verified successfully")
}

// ResendVerification sends a fresh code (POST /api/auth/resend-verification).
// The response is identical whether or not the address is registered.
func (h *Handler) ResendVerification(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}

	return message(c, http.StatusOK, ResendVerificationMessage)
}

// ForgotPassword emails a reset link (POST /api/auth/forgot-password).
// The response is identical whether or not the address is registered.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}

	h.logEvent(c, audit.EventPasswordResetRequested, "", map[string]any{"email": NormalizeEmail(req.Email)})

	return message(c, http.StatusOK, ForgotPasswordMessage)
}

// ResetPassword redeems a reset token (POST /api/auth/reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}

	h.logEvent(c, audit.EventPasswordResetCompleted, "", nil)

	return message(c, http.StatusOK, "Password successfully reset")
}

// Me returns the caller's profile (GET /api/auth/me).
func (h *Handler) Me(c echo.Context) error {
	user, err := h.service.Me(c.Request().Context(), GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

// Permissions lists the tabs the caller's role may open
// (GET /api/auth/permissions).
func (h *Handler) Permissions(c echo.Context) error {
	session := GetSession(c)
	if session == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"role":        session.Role,
		"allowedTabs": rbac.AllowedTabs(session.Role),
	})
}

// PermissionsTable returns the full role/tab matrix
// (GET /api/auth/permissions/table).
func (h *Handler) PermissionsTable(c echo.Context) error {
	return c.JSON(http.StatusOK, rbac.BuildPermissionsTable())
}

// CheckPermission answers whether a role may open a tab
// (GET /api/auth/permissions/check?role=...&tab=...).
func (h *Handler) CheckPermission(c echo.Context) error {
	role := c.QueryParam("role")
	tab := c.QueryParam("tab")
	if role == "" || tab == "" {
		return apperror.NewValidation("role and tab are required")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"role":    role,
		"tab":     tab,
		"allowed": rbac.CanAccessTab(rbac.Role(role), rbac.Tab(tab)),
	})
}
