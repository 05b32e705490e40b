package middleware

import (
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"

    "github.com/iliyamo/igotyouboo-api/internal/repository"
    "github.com/iliyamo/igotyouboo-api/internal/service"
    "github.com/iliyamo/igotyouboo-api/internal/utils"
)

func TestRenderError(t *testing.T) {
    tests := []struct {
        err    error
        status int
        body   string
    }{
        {service.ErrNoToken, 401, "Error: User not signed in"},
        {fmt.Errorf("wrapped: %w", utils.ErrExpiredToken), 401, "Error: Access token has expired"},
        {fmt.Errorf("%w: bad sig", utils.ErrInvalidToken), 401, "Error: Invalid access token"},
        {repository.ErrUserNotFound, 404, "Error: User cannot be found"},
        {service.ErrNotAuthorised, 403, "Error: You are not authorised to access this route"},
        {repository.NewValidationError("User", "email", "Emails cannot contain whitespace"), 400,
            "User validation failed: email: Emails cannot contain whitespace"},
        {echo.NewHTTPError(http.StatusTooManyRequests, "slow down"), 429, "Error: slow down"},
        {echo.ErrNotFound, 404, "Error: Not Found"},
        {fmt.Errorf("%w: x", service.ErrMissingPrecondition), 500, "Error: Something went wrong"},
        {errors.New("boom"), 500, "Error: Something went wrong"},
    }
    for _, tc := range tests {
        t.Run(tc.err.Error(), func(t *testing.T) {
            status, body := renderError(tc.err)
            assert.Equal(t, tc.status, status)
            assert.Equal(t, tc.body, body)
        })
    }
}

func TestErrorHandler_WritesJSON(t *testing.T) {
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

    ErrorHandler(service.ErrIncorrectPassword, c)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.JSONEq(t, `{"errors":"Error: Incorrect password"}`, rec.Body.String())

    // A committed response is left alone.
    ErrorHandler(errors.New("late"), c)
    assert.JSONEq(t, `{"errors":"Error: Incorrect password"}`, rec.Body.String())
}
