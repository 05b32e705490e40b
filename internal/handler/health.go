package handler // declare the package name; contains HTTP handlers

import (
    "context"  // bounds the store ping
    "net/http" // net/http provides status codes and response helpers
    "time"     // ping timeout

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Home is the API's landing route.
func Home(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"message": "Hello world!"})
}

// StorePinger is the part of the store the database health check needs.
type StorePinger interface {
    Ping(ctx context.Context) error
    Driver() string
}

// DatabaseHealth reports whether the configured store answers a ping.  A
// failing store yields 503.
func DatabaseHealth(store StorePinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()

        if err := store.Ping(ctx); err != nil {
            return c.JSON(http.StatusServiceUnavailable, echo.Map{
                "driver": store.Driver(),
                "status": "down",
                "error":  err.Error(),
            })
        }
        return c.JSON(http.StatusOK, echo.Map{"driver": store.Driver(), "status": "up"})
    }
}
