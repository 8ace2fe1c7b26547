package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/welldanyogia/colancer-registry/internal/auth"
	"github.com/welldanyogia/colancer-registry/internal/config"
	"github.com/welldanyogia/colancer-registry/internal/health"
	"github.com/welldanyogia/colancer-registry/internal/identity"
	"github.com/welldanyogia/colancer-registry/internal/logger"
	"github.com/welldanyogia/colancer-registry/internal/metrics"
	appmw "github.com/welldanyogia/colancer-registry/internal/middleware"
	"github.com/welldanyogia/colancer-registry/internal/registration"
	"github.com/welldanyogia/colancer-registry/internal/registry"
	"github.com/welldanyogia/colancer-registry/internal/repository"
	"github.com/welldanyogia/colancer-registry/internal/skills"
	"github.com/welldanyogia/colancer-registry/internal/storage"
)

// Version is set at build time
var Version = "dev"

func main() {
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.Load()

	if cfg.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}

	dbPool, err := setupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	// The skill ledger goes through database/sql so sqlx can map rows to structs
	skillDB, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open skill ledger: %w", err)
	}
	defer skillDB.Close()
	skillDB.SetMaxOpenConns(10)
	skillDB.SetConnMaxLifetime(5 * time.Minute)

	var redisClient *redis.Client
	var nullifiers identity.NullifierStore
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		nullifiers = identity.NewRedisNullifierStore(redisClient, 0)
	} else {
		log.Warn("REDIS_ADDR not set, spent proofs are tracked in memory only")
		nullifiers = identity.NewMemoryNullifierStore()
	}

	subdomainRepo := repository.NewSubdomainRepository(dbPool)

	var avatars registry.AvatarStore
	if cfg.Storage.AccessKeyID != "" {
		avatarStore := storage.NewAvatarStore(&cfg.Storage)
		avatars = avatarStore

		sweeper := storage.NewOrphanSweeper(avatarStore, subdomainRepo, storage.OrphanSweepConfig{
			Interval:  cfg.Storage.OrphanSweepInterval,
			MinAge:    cfg.Storage.OrphanMinAge,
			BatchSize: 1000,
			Enabled:   cfg.Storage.OrphanSweepEnabled,
		}, log)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start avatar sweeper: %w", err)
		}
		defer sweeper.Stop()
	} else {
		log.Warn("S3 credentials not set, avatar uploads are disabled")
	}

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Expiry:        cfg.JWT.Expiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		Issuer:        cfg.JWT.Issuer,
	})
	sessionService := auth.NewSessionService(tokenService, repository.NewSessionRepository(dbPool), log)

	registryService := registry.NewService(registry.ServiceConfig{
		Repository:   subdomainRepo,
		AvatarStore:  avatars,
		ParentDomain: cfg.Naming.ParentDomain,
		Logger:       log,
	})

	registrationService := registration.NewService(registration.ServiceConfig{
		Verifier: identity.NewHTTPVerifier(identity.HTTPVerifierConfig{
			BaseURL: cfg.WorldID.BaseURL,
			AppID:   cfg.WorldID.AppID,
			Timeout: cfg.WorldID.Timeout,
			Logger:  log,
		}),
		Nullifiers:  nullifiers,
		Registry:    registryService,
		Sessions:    sessionService,
		MaxAttempts: cfg.Naming.MaxAttempts,
		Logger:      log,
	})

	skillService := skills.NewService(skills.ServiceConfig{
		Attester: skills.NewHTTPAttester(skills.HTTPAttesterConfig{
			BaseURL: cfg.Attestation.BaseURL,
			APIKey:  cfg.Attestation.APIKey,
			Timeout: cfg.Attestation.Timeout,
			Logger:  log,
		}),
		Repository: repository.NewSkillRepository(skillDB),
		Logger:     log,
	})

	healthHandler := health.NewHandler(health.Config{
		DBPool:      dbPool,
		SkillDB:     skillDB,
		RedisClient: redisClient,
		Version:     Version,
	})

	statsCollector := metrics.NewDBStatsCollector(dbPool, skillDB.DB, log)
	statsCollector.Start(15 * time.Second)
	defer statsCollector.Stop()

	stopBackground := make(chan struct{})
	defer close(stopBackground)
	registrationLimiter := appmw.NewRegistrationRateLimiter()
	registrationLimiter.Limiter().Start(stopBackground)
	previewLimiter := appmw.NewPreviewRateLimiter()
	previewLimiter.Limiter().Start(stopBackground)
	sessionService.StartCleanup(time.Hour, stopBackground)

	authMiddleware := appmw.NewAuthMiddleware(tokenService)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmw.StructuredLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		registration.RegisterRoutes(r, registration.NewHandler(registrationService, log), registrationLimiter.Handler, previewLimiter.Handler)
		auth.RegisterRoutes(r, auth.NewHandler(sessionService, log), authMiddleware.Authenticate)
		registry.RegisterRoutes(r, registry.NewHandler(registryService, log), authMiddleware.Authenticate)
		skills.RegisterRoutes(r, skills.NewHandler(skillService, log), authMiddleware.Authenticate)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", addr, "parent_domain", registryService.ParentDomain(), "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("Shutting down server", "signal", sig.String())
	}

	healthHandler.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited")
	return nil
}

// setupDatabase creates and configures the registry connection pool
func setupDatabase(cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Connected to database",
		"database", cfg.Database.DBName,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
	)
	return pool, nil
}
