package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger writes one zerolog line per request, tagged with the trace id
// when the request is traced.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			event := logger.Info()
			status := c.Response().Status
			if status >= 500 {
				event = logger.Error().Err(err)
			}

			event = event.
				Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start))
			if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
				event = event.Str("traceID", sc.TraceID().String())
			}
			event.Msg("request")
			return nil
		}
	}
}
