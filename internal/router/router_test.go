package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/igotyouboo-api/internal/config"
	"github.com/iliyamo/igotyouboo-api/internal/handler"
	"github.com/iliyamo/igotyouboo-api/internal/middleware"
	"github.com/iliyamo/igotyouboo-api/internal/model"
	"github.com/iliyamo/igotyouboo-api/internal/repository"
	"github.com/iliyamo/igotyouboo-api/internal/service"
	"github.com/iliyamo/igotyouboo-api/internal/utils"
)

type api struct {
	t     *testing.T
	e     *echo.Echo
	store *repository.MemoryStore
}

// apiOptions switch on the Redis-backed features and let a test wrap the
// user store.
type apiOptions struct {
	rdb       *redis.Client
	rateLimit config.RateLimitConfig
	cache     config.CacheConfig
	users     func(*repository.MemoryStore) repository.UserStore
}

func newAPI(t *testing.T) *api { return newAPIWith(t, apiOptions{}) }

func newAPIWith(t *testing.T, opts apiOptions) *api {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.EnsureRoles(context.Background(), model.DefaultRoles))

	c, err := utils.NewCipher("enc-key", "enc-iv", "enc-salt")
	require.NoError(t, err)
	codec, err := utils.NewTokenCodec("jwt-secret", c, 0)
	require.NoError(t, err)

	var users repository.UserStore = store
	if opts.users != nil {
		users = opts.users(store)
	}
	accounts := service.NewAccountService(users, store, utils.NewPasswordHasher(bcrypt.MinCost), codec, nil, "")
	auth := middleware.NewAuth(accounts, service.NewIdentityResolver(codec, store, store), middleware.CookieConfig{})

	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(middleware.RequestLogger())
	RegisterRoutes(e, store)
	cache := middleware.NewProfileCache(opts.cache, opts.rdb)
	RegisterAccount(e, handler.NewAccountHandler(accounts, auth, cache), AccountDeps{RateLimit: opts.rateLimit, Redis: opts.rdb})
	return &api{t: t, e: e, store: store}
}

func (a *api) do(method, path, body, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// signUp registers username and returns its id and session cookie.
func (a *api) signUp(username string) (string, string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/account/newUser",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"pw-`+username+`"}`, "")
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Data model.PublicUser `json:"data"`
	}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data.ID, cookieOf(a.t, rec)
}

func cookieOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			return ck.Value
		}
	}
	t.Fatalf("no %s cookie in response", middleware.CookieName)
	return ""
}

func errorsOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Errors string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Errors
}

func (a *api) promote(id string) {
	a.t.Helper()
	ctx := context.Background()
	adminID, err := a.store.FindRoleIDByName(ctx, model.RoleAdmin)
	require.NoError(a.t, err)
	_, err = a.store.UpdateUserByID(ctx, id, model.UserPatch{RoleID: &adminID})
	require.NoError(a.t, err)
}

func TestSignUp_ReturnsPublicUser(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/account/newUser",
		`{"username":"alice","email":"alice@example.com","password":"pw","role":"Admin"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	var body struct {
		Data model.PublicUser `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Data.Username)
	assert.Equal(t, model.RoleSuperstar, body.Data.Role)
	assert.Equal(t, model.DefaultProfilePicture, body.Data.ProfilePicture)
	assert.NotEmpty(t, cookieOf(t, rec))
}

func TestSignUp_ValidationBody(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodPost, "/account/newUser",
		`{"username":"waytoolongusername","email":"x@example.com","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User validation failed: username: Usernames can be a max of 16 characters", errorsOf(t, rec))
}

func TestSignInAndCookieCheck(t *testing.T) {
	a := newAPI(t)
	a.signUp("alice")

	rec := a.do(http.MethodPost, "/account/signIn", `{"username":"alice","password":"pw-alice"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","role":"Superstar"}`, rec.Body.String())
	cookie := cookieOf(t, rec)

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"alice","role":"Superstar"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", "")
	assert.JSONEq(t, `{"noCookie":"user not signed in"}`, rec.Body.String())
}

func TestSignOut(t *testing.T) {
	a := newAPI(t)
	_, cookie := a.signUp("alice")

	rec := a.do(http.MethodPost, "/account/signOut", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"signed":"out"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")

	rec = a.do(http.MethodPost, "/account/signOut", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Error: User not signed in", errorsOf(t, rec))
}

func TestListUsers_AdminOnly(t *testing.T) {
	a := newAPI(t)
	_, aliceCookie := a.signUp("alice")
	adminID, _ := a.signUp("admin")
	a.promote(adminID)

	rec := a.do(http.MethodGet, "/account/", "", aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/account/signIn", `{"username":"admin","password":"pw-admin"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	adminCookie := cookieOf(t, rec)

	rec = a.do(http.MethodGet, "/account/", "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []model.PublicUser `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, model.RoleSuperstar, body.Data[0].Role)
	assert.Equal(t, model.RoleAdmin, body.Data[1].Role)
}

func TestGetUser(t *testing.T) {
	a := newAPI(t)
	a.signUp("alice")

	rec := a.do(http.MethodGet, "/account/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = a.do(http.MethodGet, "/account/nobody", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Error: User cannot be found", errorsOf(t, rec))
}

// Alice may edit herself but not Bob; an admin may delete Bob, after which
// Bob's cookie no longer works.
func TestOwnershipScenario(t *testing.T) {
	a := newAPI(t)
	aliceID, aliceCookie := a.signUp("alice")
	bobID, bobCookie := a.signUp("bob")
	adminID, _ := a.signUp("root")
	a.promote(adminID)
	rec := a.do(http.MethodPost, "/account/signIn", `{"username":"root","password":"pw-root"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	adminCookie := cookieOf(t, rec)

	rec = a.do(http.MethodPatch, "/account/"+bobID, `{"pronouns":"they/them"}`, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Error: You are not authorised to access this route", errorsOf(t, rec))

	rec = a.do(http.MethodPatch, "/account/"+aliceID, `{"pronouns":"she/her"}`, aliceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pronouns":"she/her"`)

	rec = a.do(http.MethodDelete, "/account/"+bobID, "", aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodDelete, "/account/"+bobID, "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"deleting user: bob"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", bobCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateSelf_PasswordChangeKeepsSession(t *testing.T) {
	a := newAPI(t)
	aliceID, oldCookie := a.signUp("alice")

	rec := a.do(http.MethodPatch, "/account/"+aliceID, `{"password":"new-password"}`, oldCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	newCookie := cookieOf(t, rec)

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", oldCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Error: Local cookie details do not match information on record", errorsOf(t, rec))

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", newCookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdate_RoleChangeNeedsAdmin(t *testing.T) {
	a := newAPI(t)
	aliceID, aliceCookie := a.signUp("alice")

	rec := a.do(http.MethodPatch, "/account/"+aliceID, `{"role":"Admin"}`, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteSelf(t *testing.T) {
	a := newAPI(t)
	_, cookie := a.signUp("alice")

	rec := a.do(http.MethodDelete, "/account/", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"deleting user: alice"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")

	rec = a.do(http.MethodGet, "/account/alice", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthRoutes(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, "ok", rec.Body.String())

	rec = a.do(http.MethodGet, "/databaseHealth", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"driver":"memory","status":"up"}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDEchoed(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-123")
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
}

type failingDeletes struct {
	*repository.MemoryStore
}

func (failingDeletes) DeleteUserByID(context.Context, string) (*model.User, error) {
	return nil, errors.New("store unavailable")
}

func TestDeleteSelf_FailureKeepsSession(t *testing.T) {
	a := newAPIWith(t, apiOptions{users: func(s *repository.MemoryStore) repository.UserStore {
		return failingDeletes{s}
	}})
	_, cookie := a.signUp("alice")

	rec := a.do(http.MethodDelete, "/account/", "", cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Set-Cookie"))

	rec = a.do(http.MethodPost, "/account/cookieCheck", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func newRedisAPI(t *testing.T) (*api, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return newAPIWith(t, apiOptions{
		rdb: rdb,
		rateLimit: config.RateLimitConfig{
			Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
			TTL: time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
		},
		cache: config.CacheConfig{
			Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute,
			KeyStrategy: "path", Prefix: "profile", MaxBodyBytes: 64 * 1024,
		},
	}), mr
}

func TestProfileCache_InvalidatedByUpdateAndDelete(t *testing.T) {
	a, _ := newRedisAPI(t)
	aliceID, cookie := a.signUp("alice")

	rec := a.do(http.MethodGet, "/account/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = a.do(http.MethodGet, "/account/alice", "", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.NotContains(t, rec.Body.String(), "she/her")

	rec = a.do(http.MethodPatch, "/account/"+aliceID, `{"pronouns":"she/her"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie = cookieOf(t, rec)

	rec = a.do(http.MethodGet, "/account/alice", "", "")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), `"pronouns":"she/her"`)

	// A rename drops the old profile and the new one is looked up fresh.
	rec = a.do(http.MethodPatch, "/account/"+aliceID, `{"username":"alicia"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie = cookieOf(t, rec)
	rec = a.do(http.MethodGet, "/account/alice", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(http.MethodGet, "/account/alicia", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = a.do(http.MethodDelete, "/account/", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, "/account/alicia", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignIn_RateLimited(t *testing.T) {
	a, mr := newRedisAPI(t)
	a.signUp("alice")

	var codes []int
	for i := 0; i < 4; i++ {
		rec := a.do(http.MethodPost, "/account/signIn", `{"username":"alice","password":"wrong"}`, "")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{400, 400, 429, 429}, codes)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "rl:ip:192.0.2.1:route:POST /account/signIn", keys[0])

	// Sign-up is not limited.
	a.signUp("bob")
}
