package middleware // middleware provides shared request processing for handlers

import (
    "fmt" // error wrapping

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/igotyouboo-api/internal/metrics"
    "github.com/iliyamo/igotyouboo-api/internal/model"
    "github.com/iliyamo/igotyouboo-api/internal/service"
)

// RequireAdmin passes only callers whose live role is Admin.
func (a *Auth) RequireAdmin() Step {
    return Step{
        Name:     "require-admin",
        Requires: FieldIdentity,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                if State(c).RoleName != model.RoleAdmin {
                    metrics.RecordAuthFailure("not_admin")
                    return service.ErrNotAuthorised
                }
                return next(c)
            }
        },
    }
}

// AuthorFromPath records the :authorId route parameter as the account the
// request acts on.
func (a *Auth) AuthorFromPath() Step {
    return Step{
        Name:     "author-from-path",
        Provides: FieldAuthor,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                id := c.Param("authorId")
                if id == "" {
                    return fmt.Errorf("%w: route has no :authorId", service.ErrMissingPrecondition)
                }
                State(c).setAuthor(id)
                return next(c)
            }
        },
    }
}

// TargetSelf makes the caller the account the request acts on.  The route
// parameter is rewritten too so handlers reading c.Param see the same id.
func (a *Auth) TargetSelf() Step {
    return Step{
        Name:     "target-self",
        Requires: FieldIdentity,
        Provides: FieldAuthor,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                st := State(c)
                st.setAuthor(st.UserID)
                setParam(c, "authorId", st.UserID)
                return next(c)
            }
        },
    }
}

// RequireOwnerOrAdmin passes when the caller is the target account or an
// Admin.
func (a *Auth) RequireOwnerOrAdmin() Step {
    return Step{
        Name:     "require-owner-or-admin",
        Requires: FieldIdentity | FieldAuthor,
        Handler: func(next echo.HandlerFunc) echo.HandlerFunc {
            return func(c echo.Context) error {
                st := State(c)
                if st.AuthorID != st.UserID && st.RoleName != model.RoleAdmin {
                    metrics.RecordAuthFailure("not_owner")
                    return service.ErrNotAuthorised
                }
                return next(c)
            }
        },
    }
}

func setParam(c echo.Context, name, value string) {
    names := c.ParamNames()
    values := c.ParamValues()
    for i, n := range names {
        if n == name && i < len(values) {
            values[i] = value
            c.SetParamValues(values...)
            return
        }
    }
    c.SetParamNames(append(names, name)...)
    c.SetParamValues(append(values, value)...)
}
