// Command server runs the watchlist HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/JulienZD/w2tch/internal/app"
	"github.com/JulienZD/w2tch/internal/app/httpapi"
	"github.com/JulienZD/w2tch/internal/app/storage/postgres"
	"github.com/JulienZD/w2tch/internal/config"
	"github.com/JulienZD/w2tch/internal/metrics"
	"github.com/JulienZD/w2tch/internal/middleware"
	"github.com/JulienZD/w2tch/internal/platform/database"
	"github.com/JulienZD/w2tch/internal/tmdb"
	"github.com/JulienZD/w2tch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "server",
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores := app.Stores{}
	var healthCheck func(ctx context.Context) error

	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(db, cfg.Database); err != nil {
			return err
		}

		store := postgres.New(db)
		stores = app.Stores{Users: store, Watchlists: store, Entries: store, Invites: store}
		healthCheck = db.PingContext
		log.Info("using postgres storage")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	var cache tmdb.Cache
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		cache = tmdb.NewRedisCache(client)
		log.Info("search caching enabled")
	}

	catalog := tmdb.New(tmdb.Config{
		BaseURL: cfg.TMDB.BaseURL,
		APIKey:  cfg.TMDB.APIKey,
	}, cache, log.WithField("component", "tmdb"))

	application := app.New(app.Deps{
		Stores:        stores,
		Metadata:      catalog,
		Search:        catalog,
		InviteBaseURL: cfg.Server.PublicBaseURL,
		Logger:        log,
	})

	auth := middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL(), log.WithField("component", "auth"))
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log.WithField("component", "ratelimit"))
	limiter.StartCleanup(10 * time.Minute)

	router, err := httpapi.NewRouter(application, httpapi.Options{
		Auth:        auth,
		Metrics:     metrics.New("w2tch"),
		Logger:      log.WithField("component", "httpapi"),
		RateLimiter: limiter,
		CORS:        middleware.NewCORS(cfg.Server.Origins()),
		AuditFile:   cfg.Server.AuditLogPath,
		HealthCheck: healthCheck,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
