package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/odontoclinic/agenda/internal/config"
	"github.com/odontoclinic/agenda/internal/domain/clinic"
	"github.com/odontoclinic/agenda/internal/domain/scheduling"
	"github.com/odontoclinic/agenda/internal/domain/tenant"
	"github.com/odontoclinic/agenda/internal/platform/auth"
	"github.com/odontoclinic/agenda/internal/platform/cache"
	"github.com/odontoclinic/agenda/internal/platform/db"
	"github.com/odontoclinic/agenda/internal/platform/events"
	"github.com/odontoclinic/agenda/internal/platform/middleware"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, err := cache.New(ctx, cfg.RedisURL, cache.Options{Size: cfg.CacheSize, TTL: cfg.CacheTTL})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to cache")
	}
	defer store.Close()

	checks := []db.Check{{Name: "cache", Probe: store.Ping}}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		publisher = amqpPub
		checks = append(checks, db.Check{Name: "broker", Probe: amqpPub.Ping})
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing appointment events")
	}
	defer publisher.Close()

	// Domain services
	tenantSvc := tenant.NewService(tenant.NewRepoPG(pool), store, logger)
	clinicSvc := clinic.NewService(clinic.NewRepoPG(pool), store, logger)
	schedSvc := scheduling.NewService(
		scheduling.NewResourceRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		clinicSvc, publisher, logger,
	)

	if cfg.IsDev() {
		if err := tenantSvc.Ensure(ctx, cfg.DefaultTenant, "Development clinic"); err != nil {
			logger.Warn().Err(err).Str("tenant_id", cfg.DefaultTenant).Msg("could not ensure default tenant")
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("development auth enabled, every request runs as admin")
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(db.TenantMiddleware(cfg.DefaultTenant, cfg.IsDev()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst

	apiV1 := e.Group("/api/v1", middleware.RateLimit(rl))
	tenant.NewHandler(tenantSvc).RegisterRoutes(apiV1)

	agenda := apiV1.Group("", tenant.RequireModule(tenantSvc, tenant.ModuleAgenda))
	clinic.NewHandler(clinicSvc).RegisterRoutes(agenda)
	scheduling.NewHandler(schedSvc).RegisterRoutes(agenda)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
