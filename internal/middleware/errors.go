package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/carelinkhealth/portal/internal/apperror"
)

// JSONErrorHandler is the Echo error handler for the API. It maps domain
// errors (AppError) to {"error", "type", "message", ...meta} bodies. Anything
// else becomes a generic 500 so driver errors never reach the client.
func JSONErrorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := apperror.TypeInternal
	message := "An unexpected error occurred"
	var meta map[string]any

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message
		meta = appErr.Meta

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}

	case errors.As(err, &echoErr):
		// Router errors (404, 405) and binder errors.
		code = echoErr.Code
		errType = typeForStatus(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}

	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	body := make(map[string]any, 3+len(meta))
	for k, v := range meta {
		body[k] = v
	}
	body["error"] = http.StatusText(code)
	body["type"] = errType
	body["message"] = message

	if code == http.StatusTooManyRequests && c.Response().Header().Get("Retry-After") == "" {
		if mins, ok := meta["retry_after_minutes"].(int); ok {
			c.Response().Header().Set("Retry-After", strconv.Itoa(mins*60))
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, body); err != nil {
		slog.Error("writing error response", slog.Any("error", err))
	}
}

// typeForStatus picks an error type for errors that carry only a status.
func typeForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return apperror.TypeBadRequest
	case http.StatusUnauthorized:
		return apperror.TypeUnauthorized
	case http.StatusForbidden:
		return apperror.TypeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperror.TypeNotFound
	case http.StatusTooManyRequests:
		return apperror.TypeTooManyAttempts
	default:
		if code < http.StatusInternalServerError {
			return apperror.TypeBadRequest
		}
		return apperror.TypeInternal
	}
}
