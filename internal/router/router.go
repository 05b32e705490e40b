package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/igotyouboo-api/internal/config"
	"github.com/iliyamo/igotyouboo-api/internal/handler"    // handlers that answer each route
	"github.com/iliyamo/igotyouboo-api/internal/metrics"    // Prometheus exposition
	"github.com/iliyamo/igotyouboo-api/internal/middleware" // auth chain steps, rate limiter and cache
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: liveness, store health and metrics.
func RegisterRoutes(e *echo.Echo, store handler.StorePinger) {
	e.GET("/", handler.Home)
	// Liveness for load balancers.
	e.GET("/healthz", handler.Health)
	// Store connectivity.
	e.GET("/databaseHealth", handler.DatabaseHealth(store))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// AccountDeps groups what RegisterAccount needs beyond the handler.
type AccountDeps struct {
	RateLimit config.RateLimitConfig
	Redis     *redis.Client // nil disables rate limiting and caching
}

// RegisterAccount wires the /account routes.  Each route's middleware is an
// auth chain assembled with MustChain, so a route whose steps are out of
// order fails at start-up instead of on the first request.
func RegisterAccount(e *echo.Echo, h *handler.AccountHandler, deps AccountDeps) {
	a := h.Auth
	g := e.Group("/account")

	// Sign-up signs the new user in.
	g.POST("/newUser", h.SignUp, middleware.MustChain(a.Register(), a.MintCookie())...)
	// Password guessing is capped per client before the credentials are checked.
	g.POST("/signIn", h.SignIn, middleware.MustChain(
		middleware.RateLimit(deps.RateLimit, deps.Redis), a.Login(), a.MintCookie())...)
	// Logout runs first so MintCookie writes an expired cookie.
	g.POST("/signOut", h.SignOut, middleware.MustChain(a.Logout(), a.Authenticate(), a.MintCookie())...)
	g.POST("/cookieCheck", h.CookieCheck, middleware.MustChain(a.RecognizeCookie(), a.MintCookie())...)

	g.GET("/", h.ListUsers, middleware.MustChain(a.Authenticate(), a.RequireAdmin())...)
	// Public profile, served from the response cache when enabled.
	g.GET("/:username", h.GetUser, middleware.MustChain(h.Cache.Step())...)

	g.PATCH("/:authorId", h.UpdateUser, middleware.MustChain(
		a.Authenticate(), a.AuthorFromPath(), a.RequireOwnerOrAdmin())...)
	g.DELETE("/:authorId", h.DeleteUser, middleware.MustChain(
		a.Authenticate(), a.AuthorFromPath(), a.RequireOwnerOrAdmin())...)
	// Deleting yourself also signs you out.  The handler expires the cookie
	// once the delete succeeded, so there is no MintCookie step here.
	g.DELETE("/", h.DeleteUser, middleware.MustChain(
		a.Authenticate(), a.TargetSelf(), a.RequireOwnerOrAdmin(), a.Logout())...)
}
