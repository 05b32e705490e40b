package middleware

import (
    "fmt"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/igotyouboo-api/internal/service"
)

// Field names one piece of AuthState a step can require or provide.
type Field uint8

const (
    FieldIdentity Field = 1 << iota // UserID, Username, RoleID, RoleName, User
    FieldToken                      // Token
    FieldAuthor                     // AuthorID
    FieldLogout                     // LoggingOut
)

func (f Field) String() string {
    var names []string
    for _, n := range []struct {
        f    Field
        name string
    }{{FieldIdentity, "identity"}, {FieldToken, "token"}, {FieldAuthor, "author"}, {FieldLogout, "logout"}} {
        if f&n.f != 0 {
            names = append(names, n.name)
        }
    }
    if len(names) == 0 {
        return "none"
    }
    return strings.Join(names, "|")
}

// Step is one link of an authorization chain.
type Step struct {
    Name     string
    Requires Field
    Provides Field
    Handler  echo.MiddlewareFunc
}

// Plain wraps a middleware that neither reads nor writes AuthState.
func Plain(name string, mw echo.MiddlewareFunc) Step {
    return Step{Name: name, Handler: mw}
}

// Chain checks that every step's requirements are provided by an earlier
// step and returns the steps as echo middleware in order.  Each returned
// middleware re-checks its requirements at request time and fails with
// service.ErrMissingPrecondition if they are absent.
func Chain(steps ...Step) ([]echo.MiddlewareFunc, error) {
    var have Field
    out := make([]echo.MiddlewareFunc, 0, len(steps))
    for i, s := range steps {
        if s.Handler == nil {
            return nil, fmt.Errorf("step %d (%s): no handler", i, s.Name)
        }
        if missing := s.Requires &^ have; missing != 0 {
            return nil, fmt.Errorf("step %d (%s) requires %s, not provided by an earlier step", i, s.Name, missing)
        }
        have |= s.Provides
        out = append(out, guard(s))
    }
    return out, nil
}

// MustChain is Chain for route registration; it panics on a wiring error.
func MustChain(steps ...Step) []echo.MiddlewareFunc {
    mws, err := Chain(steps...)
    if err != nil {
        panic(err)
    }
    return mws
}

func guard(s Step) echo.MiddlewareFunc {
    if s.Requires == 0 {
        return s.Handler
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        h := s.Handler(next)
        return func(c echo.Context) error {
            st := State(c)
            if !st.Has(s.Requires) {
                return fmt.Errorf("%w: %s needs %s", service.ErrMissingPrecondition, s.Name, s.Requires&^st.provided)
            }
            return h(c)
        }
    }
}
