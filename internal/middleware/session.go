package middleware

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/igotyouboo-api/internal/service"
)

type loginReq struct {
    Username string `json:"username"`
    Password string `json:"password"`
}

// Login checks the username/password body and stores the identity and a
// fresh token.  It sets no cookie; MintCookie does.
func (a *Auth) Login() Step {
    return Step{
        Name:     "login",
        Provides: FieldIdentity | FieldToken,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                var req loginReq
                if err := c.Bind(&req); err != nil {
                    return service.ErrMissingCredentials
                }
                u, roleName, err := a.accounts.Login(c.Request().Context(), req.Username, req.Password)
                if err != nil {
                    return err
                }
                tok, err := a.accounts.IssueToken(*u)
                if err != nil {
                    return err
                }
                st := State(c)
                st.setIdentity(u, roleName)
                st.setToken(tok)
                return next(c)
            }
        },
    }
}

// Logout marks the request so MintCookie expires the cookie.
func (a *Auth) Logout() Step {
    return Step{
        Name:     "logout",
        Provides: FieldLogout,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                st := State(c)
                st.LoggingOut = true
                st.mark(FieldLogout)
                return next(c)
            }
        },
    }
}

// Register creates an account from the request body and signs it in.
func (a *Auth) Register() Step {
    return Step{
        Name:     "register",
        Provides: FieldIdentity | FieldToken,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                var in service.RegisterInput
                if err := c.Bind(&in); err != nil {
                    return err
                }
                u, roleName, err := a.accounts.Register(c.Request().Context(), in)
                if err != nil {
                    return err
                }
                tok, err := a.accounts.IssueToken(*u)
                if err != nil {
                    return err
                }
                st := State(c)
                st.setIdentity(u, roleName)
                st.setToken(tok)
                return next(c)
            }
        },
    }
}
