package handler

import (
    "context"  // provides context with cancellation for store calls
    "net/http" // HTTP status codes and primitives
    "time"     // timeouts for store calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/igotyouboo-api/internal/middleware" // auth state, cookie writer and profile cache
    "github.com/iliyamo/igotyouboo-api/internal/service"    // account operations
    "github.com/iliyamo/igotyouboo-api/internal/utils"      // access token type
)

// storeTimeout bounds every store round trip made by a handler.
const storeTimeout = 5 * time.Second

// AccountHandler bundles dependencies for the /account endpoints.  The auth
// chain in front of each route has already authenticated the caller and
// picked the target account; handlers read both from middleware.State.
type AccountHandler struct {
    Accounts *service.AccountService
    Auth     *middleware.Auth
    Cache    *middleware.ProfileCache
}

func NewAccountHandler(accounts *service.AccountService, auth *middleware.Auth, cache *middleware.ProfileCache) *AccountHandler {
    return &AccountHandler{Accounts: accounts, Auth: auth, Cache: cache}
}

// profilePath is the public lookup URL of username, which is also its cache
// key.
func profilePath(username string) string { return "/account/" + username }

// SignUp answers POST /account/newUser after Register and MintCookie ran.
func (h *AccountHandler) SignUp(c echo.Context) error {
    st := middleware.State(c)
    return c.JSON(http.StatusCreated, echo.Map{"data": st.User.Public(st.RoleName)})
}

// SignIn answers POST /account/signIn.
func (h *AccountHandler) SignIn(c echo.Context) error {
    st := middleware.State(c)
    return c.JSON(http.StatusOK, echo.Map{"username": st.Username, "role": st.RoleName})
}

// SignOut answers POST /account/signOut; the cookie is already expired.
func (h *AccountHandler) SignOut(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"signed": "out"})
}

// CookieCheck answers POST /account/cookieCheck for a recognised session.
func (h *AccountHandler) CookieCheck(c echo.Context) error {
    st := middleware.State(c)
    return c.JSON(http.StatusOK, echo.Map{"username": st.Username, "role": st.RoleName})
}

// ListUsers returns every account with role names populated.  Admin only.
func (h *AccountHandler) ListUsers(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    users, err := h.Accounts.List(ctx)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"data": users})
}

// GetUser returns the public profile for :username.
func (h *AccountHandler) GetUser(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    u, err := h.Accounts.Get(ctx, c.Param("username"))
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"data": u})
}

// UpdateUser applies the body to the target account.  When callers update
// themselves the session cookie is re-minted so a password change does not
// sign them out.
func (h *AccountHandler) UpdateUser(c echo.Context) error {
    var in service.UpdateInput
    if err := c.Bind(&in); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
    }
    st := middleware.State(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    before, err := h.Accounts.ByID(ctx, st.AuthorID)
    if err != nil {
        return err
    }
    u, err := h.Accounts.Update(ctx, st.Identity(), st.AuthorID, in)
    if err != nil {
        return err
    }
    h.Cache.Invalidate(ctx, profilePath(before.Username))
    if u.Username != before.Username {
        h.Cache.Invalidate(ctx, profilePath(u.Username))
    }

    if u.ID == st.UserID {
        tok, err := h.Accounts.IssueToken(*u)
        if err != nil {
            return err
        }
        h.Auth.WriteCookie(c, tok, false)
    }

    roleName, err := h.Accounts.RoleName(ctx, u.RoleID)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"message": u.Public(roleName)})
}

// DeleteUser removes the target account.  It serves both DELETE
// /account/:authorId and DELETE /account/, where TargetSelf picked the
// caller and Logout asked for the session to end.  The cookie is only
// expired after the account is gone.
func (h *AccountHandler) DeleteUser(c echo.Context) error {
    st := middleware.State(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
    defer cancel()

    u, err := h.Accounts.Delete(ctx, st.Identity(), st.AuthorID)
    if err != nil {
        return err
    }
    h.Cache.Invalidate(ctx, profilePath(u.Username))
    if st.LoggingOut {
        h.Auth.WriteCookie(c, utils.AccessToken{}, true)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "deleting user: " + u.Username})
}
