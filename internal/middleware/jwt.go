package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "errors"   // errors classifies resolver failures
    "net/http" // HTTP status codes and cookie type
    "strings"  // strings parses the SameSite option
    "time"     // time computes cookie expiry

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/igotyouboo-api/internal/metrics"    // auth failure counters
    "github.com/iliyamo/igotyouboo-api/internal/repository" // ErrUserNotFound
    "github.com/iliyamo/igotyouboo-api/internal/service"    // identity resolution and token issue
    "github.com/iliyamo/igotyouboo-api/internal/utils"      // token type and errors
)

// CookieName is the cookie carrying the access token.
const CookieName = "access_token"

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
    Secure   bool
    SameSite http.SameSite
}

// ParseSameSite maps lax|strict|none to http.SameSite; anything else is lax.
func ParseSameSite(s string) http.SameSite {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "strict":
        return http.SameSiteStrictMode
    case "none":
        return http.SameSiteNoneMode
    default:
        return http.SameSiteLaxMode
    }
}

// Auth builds the steps of the authorization chain.  It holds the services
// the steps call; the steps themselves hold no state between requests.
type Auth struct {
    accounts *service.AccountService
    resolver *service.IdentityResolver
    cookie   CookieConfig
}

func NewAuth(accounts *service.AccountService, resolver *service.IdentityResolver, cookie CookieConfig) *Auth {
    return &Auth{accounts: accounts, resolver: resolver, cookie: cookie}
}

// Authenticate reads the access_token cookie, resolves it to a live
// identity and mints a fresh token so every authenticated request slides
// the session forward.
func (a *Auth) Authenticate() Step {
    return Step{
        Name:     "authenticate",
        Provides: FieldIdentity | FieldToken,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                raw := cookieValue(c)
                if raw == "" {
                    metrics.RecordAuthFailure("no_token")
                    return service.ErrNoToken
                }
                if err := a.resolveInto(c, raw); err != nil {
                    return err
                }
                return next(c)
            }
        },
    }
}

// RecognizeCookie is Authenticate for session restore: a visitor without a
// cookie is not an error, it gets {"noCookie": "user not signed in"} and the
// chain stops.
func (a *Auth) RecognizeCookie() Step {
    return Step{
        Name:     "recognize-cookie",
        Provides: FieldIdentity | FieldToken,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                raw := cookieValue(c)
                if raw == "" {
                    return c.JSON(http.StatusOK, echo.Map{"noCookie": "user not signed in"})
                }
                if err := a.resolveInto(c, raw); err != nil {
                    return err
                }
                return next(c)
            }
        },
    }
}

// MintCookie writes the token from state into the session cookie, or an
// expired empty cookie when Logout ran earlier in the chain.
func (a *Auth) MintCookie() Step {
    return Step{
        Name:     "mint-cookie",
        Requires: FieldToken,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                st := State(c)
                a.WriteCookie(c, st.Token, st.LoggingOut)
                return next(c)
            }
        },
    }
}

// WriteCookie sets the session cookie on the response.  Handlers use it
// directly when they mint a token outside the chain.
func (a *Auth) WriteCookie(c echo.Context, tok utils.AccessToken, logout bool) {
    ck := &http.Cookie{
        Name:     CookieName,
        Value:    tok.Token,
        Path:     "/",
        HttpOnly: true,
        Secure:   a.cookie.Secure,
        SameSite: a.cookie.SameSite,
        MaxAge:   int(a.accounts.TokenTTL() / time.Second),
        Expires:  tok.Exp,
    }
    if logout {
        // MaxAge<0 is serialized as Max-Age=0, which deletes the cookie.
        ck.Value = ""
        ck.MaxAge = -1
        ck.Expires = time.Unix(0, 0)
    }
    c.SetCookie(ck)
}

func cookieValue(c echo.Context) string {
    ck, err := c.Cookie(CookieName)
    if err != nil {
        return ""
    }
    return ck.Value
}

// resolveInto resolves raw, stores the identity and a fresh token in state.
func (a *Auth) resolveInto(c echo.Context, raw string) error {
    ctx := c.Request().Context()
    id, err := a.resolver.Resolve(ctx, raw)
    if err != nil {
        // A token for a deleted account is a stale credential (401), not a
        // 404: the cookie names nobody, so the client must sign in again.
        if errors.Is(err, repository.ErrUserNotFound) {
            err = service.ErrStaleCredential
        }
        metrics.RecordAuthFailure(failureReason(err))
        return err
    }
    tok, err := a.accounts.IssueToken(id.User)
    if err != nil {
        return err
    }

    st := State(c)
    u := id.User
    st.setIdentity(&u, id.RoleName)
    st.setToken(tok)
    return nil
}

func failureReason(err error) string {
    switch {
    case errors.Is(err, service.ErrStaleCredential):
        return "stale_credential"
    case errors.Is(err, utils.ErrExpiredToken):
        return "expired_token"
    case errors.Is(err, utils.ErrMalformedPayload):
        return "malformed_payload"
    case errors.Is(err, utils.ErrInvalidToken):
        return "invalid_token"
    }
    return "error"
}
