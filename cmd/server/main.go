package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/igotyouboo-api/internal/config"   // Internal config loader
	"github.com/iliyamo/igotyouboo-api/internal/database" // store connections and migrations
	"github.com/iliyamo/igotyouboo-api/internal/handler"
	"github.com/iliyamo/igotyouboo-api/internal/logging"
	"github.com/iliyamo/igotyouboo-api/internal/middleware"
	"github.com/iliyamo/igotyouboo-api/internal/model"
	"github.com/iliyamo/igotyouboo-api/internal/queue"
	"github.com/iliyamo/igotyouboo-api/internal/repository"
	"github.com/iliyamo/igotyouboo-api/internal/router" // Internal router setup
	"github.com/iliyamo/igotyouboo-api/internal/service"
	"github.com/iliyamo/igotyouboo-api/internal/utils"
)

func main() {
	cfg := config.Load() // Load environment config
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	zerolog.DefaultContextLogger = &logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store: connect failed")
	}
	defer closeStore()
	if err := store.EnsureRoles(ctx, model.DefaultRoles); err != nil {
		log.Fatal().Err(err).Msg("store: ensure roles failed")
	}

	// Redis is optional: without it rate limiting and caching are disabled.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}
	roles := repository.NewCachedRoleStore(store, rdb, 0)

	cipher, err := utils.NewCipher(cfg.EncKey, cfg.EncIV, cfg.EncSalt)
	if err != nil {
		log.Fatal().Err(err).Msg("cipher: init failed")
	}
	codec, err := utils.NewTokenCodec(cfg.JWTKey, cipher, cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec: init failed")
	}

	var events service.Publisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		events = service.NewAMQPPublisher(cfg.AMQPURL)
		go func() {
			if err := queue.StartAccountConsumer(ctx, cfg.AMQPURL, queue.DefaultAuditLog); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("account-consumer: stopped")
			}
		}()
	}

	accounts := service.NewAccountService(store, roles, utils.NewPasswordHasher(cfg.BcryptCost), codec, events, cfg.DefaultRole)
	resolver := service.NewIdentityResolver(codec, store, roles)
	auth := middleware.NewAuth(accounts, resolver, middleware.CookieConfig{
		Secure:   cfg.CookieSecure,
		SameSite: middleware.ParseSameSite(cfg.CookieSameSite),
	})
	cache := middleware.NewProfileCache(config.LoadCacheConfig(), rdb)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(middleware.RequestLogger())
	router.RegisterRoutes(e, store)
	router.RegisterAccount(e, handler.NewAccountHandler(accounts, auth, cache), router.AccountDeps{
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", store.Driver()).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// openStore connects the backend named by cfg.StoreDriver.  The returned
// func releases its connections.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.OpenMySQL(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repository.NewMySQLStore(db), func() { _ = db.Close() }, nil
	case config.DriverMemory:
		return repository.NewMemoryStore(), func() {}, nil
	default:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewMongoStore(ctx, client.Database(cfg.MongoDB))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	}
}
