package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/malyga99/job-flow-auth/internal/auth"
	"github.com/malyga99/job-flow-auth/internal/config"
	"github.com/malyga99/job-flow-auth/internal/domain"
	"github.com/malyga99/job-flow-auth/internal/event"
	"github.com/malyga99/job-flow-auth/internal/federation"
	handler "github.com/malyga99/job-flow-auth/internal/handler/http"
	"github.com/malyga99/job-flow-auth/internal/oidc"
	"github.com/malyga99/job-flow-auth/internal/ratelimit"
	"github.com/malyga99/job-flow-auth/internal/repository/postgres"
	"github.com/malyga99/job-flow-auth/internal/service"
	"github.com/malyga99/job-flow-auth/migrations"
	"github.com/malyga99/job-flow-auth/pkg/database"
	"github.com/malyga99/job-flow-auth/pkg/health"
	"github.com/malyga99/job-flow-auth/pkg/httpclient"
	pkgkafka "github.com/malyga99/job-flow-auth/pkg/kafka"
	"github.com/malyga99/job-flow-auth/pkg/tracing"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "auth",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		DBName:   cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis (rate limit counters).
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Outbound HTTP clients. Provider exchange calls are never retried
	// (authorization codes are single use); JWKS and avatar fetches sit
	// behind circuit breakers since they target the same upstreams on
	// every login.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.OutboundHTTPTimeout
	outbound := httpclient.New(httpCfg)
	jwksClient := httpclient.NewCircuitBreakerClient(outbound, httpclient.DefaultCircuitBreakerConfig("google-jwks"), logger)
	avatarClient := httpclient.NewCircuitBreakerClient(outbound, httpclient.DefaultCircuitBreakerConfig("avatar-fetch"), logger)

	// Build the dependency graph.
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	accountRepo := postgres.NewAccountRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	provisioner := service.NewProvisioner(accountRepo, avatarClient, logger)

	keySet := oidc.NewKeySetCache(jwksClient, cfg.GoogleJWKSURL, cfg.JWKSCacheTTL, logger)
	googleVerifier := oidc.NewVerifier(keySet, federation.GoogleIssuers, cfg.GoogleAudience)

	registry := federation.NewRegistry()
	registry.Register(domain.ProviderGoogle, &federation.Strategy{
		State:     federation.NewStaticStateValidator(domain.ProviderGoogle, cfg.GoogleState),
		Exchanger: federation.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.GoogleTokenURL, outbound.HTTPClient()),
		Verifier:  googleVerifier,
		Extractor: federation.GoogleExtractor{},
	})
	registry.Register(domain.ProviderGithub, &federation.Strategy{
		State:     federation.NewStaticStateValidator(domain.ProviderGithub, cfg.GithubState),
		Exchanger: federation.NewGithubExchanger(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubRedirectURL, cfg.GithubTokenURL, cfg.GithubProfileURL, outbound.HTTPClient()),
		Extractor: federation.GithubExtractor{},
	})

	logger.Info("federation providers registered", slog.Any("providers", registry.Providers()))

	orchestrator := federation.NewOrchestrator(registry, provisioner, tokenManager, eventProducer, logger)
	limiter := ratelimit.New(redisClient, cfg.RateLimitLogin, cfg.RateLimitWindow)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(orchestrator, limiter, tokenManager, accountRepo, healthHandler, logger, handler.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Environment:    cfg.Environment,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client and PostgreSQL pool.
	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
