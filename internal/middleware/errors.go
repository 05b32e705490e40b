package middleware

import (
    "errors"
    "fmt"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/igotyouboo-api/internal/repository"
    "github.com/iliyamo/igotyouboo-api/internal/service"
    "github.com/iliyamo/igotyouboo-api/internal/utils"
)

// errorMapping pairs a sentinel with its response.
type errorMapping struct {
    target  error
    status  int
    message string
}

var errorMappings = []errorMapping{
    {service.ErrNoToken, http.StatusUnauthorized, "User not signed in"},
    {service.ErrStaleCredential, http.StatusUnauthorized, "Local cookie details do not match information on record"},
    {utils.ErrExpiredToken, http.StatusUnauthorized, "Access token has expired"},
    {utils.ErrInvalidToken, http.StatusUnauthorized, "Invalid access token"},
    {utils.ErrMalformedPayload, http.StatusUnauthorized, "Invalid access token"},
    {repository.ErrUserNotFound, http.StatusNotFound, "User cannot be found"},
    {service.ErrMissingCredentials, http.StatusBadRequest, "Please enter username and password"},
    {service.ErrIncorrectPassword, http.StatusBadRequest, "Incorrect password"},
    {service.ErrNotAuthorised, http.StatusForbidden, "You are not authorised to access this route"},
}

// ErrorHandler is the echo.HTTPErrorHandler for the API.  Every error body
// is {"errors": "Error: <message>"}; validation errors carry their own
// "User validation failed: ..." message without the prefix.
func ErrorHandler(err error, c echo.Context) {
    if c.Response().Committed {
        return
    }
    status, body := renderError(err)

    logger := zerolog.Ctx(c.Request().Context())
    ev := logger.Debug()
    if status >= http.StatusInternalServerError {
        ev = logger.Error()
    }
    ev.Err(err).Int("status", status).Str("path", c.Request().URL.Path).Msg("request failed")

    if c.Request().Method == http.MethodHead {
        err = c.NoContent(status)
    } else {
        err = c.JSON(status, echo.Map{"errors": body})
    }
    if err != nil {
        logger.Error().Err(err).Msg("write error response")
    }
}

func renderError(err error) (int, string) {
    var ve *repository.ValidationError
    if errors.As(err, &ve) {
        return http.StatusBadRequest, ve.Error()
    }
    for _, m := range errorMappings {
        if errors.Is(err, m.target) {
            return m.status, "Error: " + m.message
        }
    }
    var he *echo.HTTPError
    if errors.As(err, &he) {
        return he.Code, fmt.Sprintf("Error: %v", he.Message)
    }
    return http.StatusInternalServerError, "Error: Something went wrong"
}
