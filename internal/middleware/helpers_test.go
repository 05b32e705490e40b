package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"

    "github.com/iliyamo/igotyouboo-api/internal/model"
    "github.com/iliyamo/igotyouboo-api/internal/repository"
    "github.com/iliyamo/igotyouboo-api/internal/service"
    "github.com/iliyamo/igotyouboo-api/internal/utils"
)

type testEnv struct {
    e        *echo.Echo
    store    *repository.MemoryStore
    accounts *service.AccountService
    auth     *Auth
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    store := repository.NewMemoryStore()
    require.NoError(t, store.EnsureRoles(context.Background(), model.DefaultRoles))

    c, err := utils.NewCipher("enc-key", "enc-iv", "enc-salt")
    require.NoError(t, err)
    codec, err := utils.NewTokenCodec("jwt-secret", c, utils.DefaultTokenTTL)
    require.NoError(t, err)

    accounts := service.NewAccountService(store, store, utils.NewPasswordHasher(bcrypt.MinCost), codec, nil, model.RoleSuperstar)
    resolver := service.NewIdentityResolver(codec, store, store)

    e := echo.New()
    e.HTTPErrorHandler = ErrorHandler
    return &testEnv{
        e:        e,
        store:    store,
        accounts: accounts,
        auth:     NewAuth(accounts, resolver, CookieConfig{SameSite: http.SameSiteLaxMode}),
    }
}

// user registers username with password "pw" and returns it with a cookie
// value for it.
func (env *testEnv) user(t *testing.T, username string, admin bool) (*model.User, string) {
    t.Helper()
    ctx := context.Background()
    u, _, err := env.accounts.Register(ctx, service.RegisterInput{
        Username: username, Email: username + "@example.com", Password: "pw",
    })
    require.NoError(t, err)
    if admin {
        adminID, err := env.store.FindRoleIDByName(ctx, model.RoleAdmin)
        require.NoError(t, err)
        u, err = env.store.UpdateUserByID(ctx, u.ID, model.UserPatch{RoleID: &adminID})
        require.NoError(t, err)
    }
    tok, err := env.accounts.IssueToken(*u)
    require.NoError(t, err)
    return u, tok.Token
}

// do sends a request through env.e and returns the recorder.
func (env *testEnv) do(method, path, body, cookie string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    if cookie != "" {
        req.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
    }
    rec := httptest.NewRecorder()
    env.e.ServeHTTP(rec, req)
    return rec
}

func okHandler(c echo.Context) error {
    st := State(c)
    return c.JSON(http.StatusOK, echo.Map{"user": st.Username, "role": st.RoleName, "author": st.AuthorID})
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
    for _, ck := range rec.Result().Cookies() {
        if ck.Name == CookieName {
            return ck
        }
    }
    return nil
}
