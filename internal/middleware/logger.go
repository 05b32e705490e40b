package middleware

import (
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/igotyouboo-api/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = echo.HeaderXRequestID

// RequestLogger attaches a request-scoped zerolog logger (with a request id)
// to the request context, and logs and records metrics for every request
// once it finishes.  Errors are handed to the HTTP error handler here so the
// logged status is the one the client receives.
func RequestLogger() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            req := c.Request()

            rid := req.Header.Get(RequestIDHeader)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(RequestIDHeader, rid)

            logger := log.With().Str("request_id", rid).Logger()
            c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

            if err := next(c); err != nil {
                c.Error(err)
            }

            res := c.Response()
            dur := time.Since(start)
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            metrics.RecordHTTPRequest(req.Method, route, res.Status, dur)

            ev := logger.Info()
            if res.Status >= 500 {
                ev = logger.Error()
            } else if res.Status >= 400 {
                ev = logger.Warn()
            }
            ev.Str("method", req.Method).
                Str("path", req.URL.Path).
                Int("status", res.Status).
                Dur("latency", dur).
                Str("user_id", userID(c)).
                Str("ip", c.RealIP()).
                Msg("request")
            return nil
        }
    }
}
