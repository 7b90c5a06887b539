package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// healthPath is polled by orchestrators; successful checks log at debug.
const healthPath = "/api/health"

// RequestLogger logs one line per request. 4xx responses log at WARN and
// 5xx at ERROR. The error handler runs after this middleware returns, so a
// failed handler's status is derived from its error.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			res := c.Response()

			status := res.Status
			if err != nil && !res.Committed {
				status = statusFromError(err)
			}

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("bytes_out", res.Size),
			}
			// Tokens and codes travel in bodies, never in the query string.
			if req.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", req.URL.RawQuery))
			}

			var level slog.Level
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			case req.URL.Path == healthPath:
				level = slog.LevelDebug
			default:
				level = slog.LevelInfo
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)
			return err
		}
	}
}
