package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/lab"
	"github.com/clinic/clinic/internal/domain/medicine"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/domain/referral"
	"github.com/clinic/clinic/internal/domain/report"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/domain/treatment"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const (
	version        = "1.0.0"
	eventsChannel  = "clinic:events"
	reportCacheKey = "clinic:reports:"
	// Largest accepted request, sized for scanned lab result files.
	maxBodySize = "20M"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Live queue events go straight to the local hub, or through redis when
	// several instances share the load.
	hub := websocket.NewHub(logger)
	memCache := middleware.NewInMemoryCacheStore()
	var (
		events     websocket.EventPublisher = hub
		cacheStore middleware.CacheStore    = memCache
		checks     []db.Check
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		bridge := websocket.NewRedisBridge(rdb, eventsChannel, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis bridge stopped")
			}
		}()
		events = bridge
		cacheStore = middleware.NewRedisCacheStore(rdb, reportCacheKey, logger)
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info().Msg("redis enabled for report cache and queue fan-out")
	}

	if _, local := cacheStore.(*middleware.InMemoryCacheStore); local {
		memCache.StartCleanup(ctx, time.Minute)
	}

	var blobs blobstore.BlobStore = blobstore.NewInMemoryBlobStore()
	if cfg.BlobDir != "" {
		disk, err := blobstore.NewDiskBlobStore(cfg.BlobDir)
		if err != nil {
			return fmt.Errorf("BLOB_DIR: %w", err)
		}
		blobs = disk
	} else {
		logger.Warn().Msg("BLOB_DIR not set, lab result files are kept in memory")
	}

	svc, err := newServices(cfg, pool, events, blobs, logger)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID(logger))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
		HSTS:              cfg.IsProduction(),
		CacheablePrefixes: []string{"/api/v1/reports/"},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(authMiddleware(cfg, svc.tokens)...)
	e.Use(middleware.Audit(logger, middleware.NewPGAuditRecorder(pool)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	wsHandler := websocket.NewWebSocketHandler(hub, websocket.HandlerConfig{
		Topic: queue.TopicRegistration,
		Authenticate: func(token string) (string, error) {
			claims, err := svc.tokens.Parse(token, auth.TokenTypeAccess)
			if err != nil {
				return "", err
			}
			return claims.Subject, nil
		},
		Initial: func(ctx context.Context) (interface{}, error) {
			return svc.queue.Snapshot(ctx)
		},
	})
	e.GET("/ws/queue/registration", wsHandler.HandleConnect)

	staffHandler := staff.NewHandler(svc.staff)
	staffHandler.RegisterAuthRoutes(e.Group("/auth"))

	rateLimit := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api/v1", middleware.RateLimit(rateLimit), middleware.InvalidateOnWrite(cacheStore))

	staffHandler.RegisterRoutes(api)
	patient.NewHandler(svc.patients).RegisterRoutes(api)
	queue.NewHandler(svc.queue).RegisterRoutes(api)
	medicine.NewHandler(svc.medicines).RegisterRoutes(api)
	treatment.NewHandler(svc.treatment).RegisterRoutes(api)
	referral.NewHandler(svc.referral).RegisterRoutes(api)
	lab.NewHandler(svc.lab).RegisterRoutes(api)
	report.NewHandler(svc.report, middleware.ResponseCache(cacheStore, cfg.ReportCacheTTL)).RegisterRoutes(api)
	reporting.NewHandler(pool).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wsHandler.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// authMiddleware verifies bearer tokens. In development, requests without
// an Authorization header run as an admin.
func authMiddleware(cfg *config.Config, tokens *auth.TokenIssuer) []echo.MiddlewareFunc {
	if !cfg.IsDev() {
		return []echo.MiddlewareFunc{auth.JWTMiddleware(tokens.Config(auth.AuthSkipper))}
	}
	noHeader := func(c echo.Context) bool {
		return auth.AuthSkipper(c) || c.Request().Header.Get("Authorization") == ""
	}
	return []echo.MiddlewareFunc{
		auth.DevAuthMiddleware(auth.AuthSkipper),
		auth.JWTMiddleware(tokens.Config(noHeader)),
	}
}
