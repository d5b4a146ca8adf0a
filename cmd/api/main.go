package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/catalog"
	"github.com/noah-isme/menumaster-admin/internal/config"
	"github.com/noah-isme/menumaster-admin/internal/events"
	"github.com/noah-isme/menumaster-admin/internal/fraud"
	"github.com/noah-isme/menumaster-admin/internal/health"
	"github.com/noah-isme/menumaster-admin/internal/obs"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
	"github.com/noah-isme/menumaster-admin/internal/pricing/pgstore"
	"github.com/noah-isme/menumaster-admin/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("service", cfg.Obs.ServiceName).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			logger.Error().Err(err).Msg("register breaker metrics")
		}
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    cfg.Obs.ServiceName,
			ServiceVersion: cfg.Obs.ServiceVersion,
			Endpoint:       cfg.Obs.OTLPEndpoint,
			Exporter:       cfg.Obs.TracingExporter,
			SamplingRatio:  cfg.Obs.SamplingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var probes []health.Probe

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = openRedis(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes = append(probes, health.RedisProbe(redisClient))
	} else {
		logger.Warn().Msg("REDIS_URL not set: idempotency, rate limiting and catalog caching disabled")
	}

	var registry pricing.Registry
	switch cfg.RegistryDriver {
	case config.RegistryPostgres:
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		registry = pgstore.New(pool)
		probes = append(probes, health.PostgresProbe(pool))
	default:
		logger.Warn().Msg("using in-memory pricing registry; rules are lost on restart")
		registry = pricing.NewMemoryRegistry()
	}

	lookup, err := newCatalogLookup(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog lookup")
	}

	bus, closeBus := newEventBus(cfg, logger)
	defer closeBus()

	workflow, err := pricing.NewWorkflow(pricing.WorkflowConfig{
		Registry: registry,
		Events:   bus,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise workflow")
	}

	authService, err := auth.NewService(auth.Config{
		Secret:         cfg.Auth.Secret,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}

	var classifier fraud.Classifier
	if cfg.Fraud.ClassifierURL != "" {
		hc, err := fraud.NewHTTPClassifier(fraud.HTTPConfig{
			URL:     cfg.Fraud.ClassifierURL,
			Timeout: cfg.Fraud.Timeout,
			Breaker: newBreaker(cfg, "fraud-classifier", logger),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise fraud classifier")
		}
		classifier = hc
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	handler := newRouter(routerDeps{
		Logger: logger,
		Auth:   authService,
		Pricing: pricing.NewHandler(pricing.HandlerConfig{
			Workflow: workflow,
			Resolver: pricing.Resolver{Registry: registry, Catalog: lookup},
			Logger:   logger,
		}),
		History:        registry,
		Fraud:          fraud.Handler{Classifier: classifier, Logger: logger},
		Health:         health.Handler{Probes: probes},
		Redis:          redisClient,
		HTTPMetrics:    httpMetrics,
		Tracing:        tracingEnabled,
		Metrics:        cfg.Obs.MetricsEnabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		BodyLimit:      cfg.BodyLimitBytes,
		IdempotencyTTL: cfg.IdempotencyTTL,
		FraudLimit:     cfg.Fraud.RateLimit,
		FraudWindow:    cfg.Fraud.RateWindow,
		HSTS:           cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("registry", cfg.RegistryDriver).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	logger.Info().Msg("shutdown requested")
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.RunMigrations {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.Obs.ServiceName

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newBreaker(cfg *config.Config, target string, logger zerolog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(cfg.Breaker.MinRequests, cfg.Breaker.FailureRatio, cfg.Breaker.OpenFor).
		WithTarget(target).
		WithLogger(logger)
}

func newCatalogLookup(cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) (catalog.Lookup, error) {
	var origin catalog.Lookup
	switch {
	case cfg.Catalog.BaseURL != "":
		httpLookup, err := catalog.NewHTTPLookup(catalog.HTTPConfig{
			BaseURL: cfg.Catalog.BaseURL,
			Timeout: cfg.Catalog.Timeout,
			Breaker: newBreaker(cfg, "catalog", logger),
		})
		if err != nil {
			return nil, err
		}
		origin = httpLookup
	case cfg.Catalog.SeedFile != "":
		static, err := catalog.LoadStaticLookup(cfg.Catalog.SeedFile)
		if err != nil {
			return nil, err
		}
		origin = static
	default:
		origin = catalog.NewStaticLookup(catalog.DefaultSKUs()...)
	}
	if redisClient == nil || cfg.Catalog.BaseURL == "" {
		return origin, nil
	}
	return catalog.CachedLookup{
		Origin: origin,
		Cache:  catalog.NewCache(redisClient, cfg.Catalog.CacheTTL),
		Logger: logger,
	}, nil
}

func newEventBus(cfg *config.Config, logger zerolog.Logger) (*events.Bus, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: logger}}}, func() {}
	}
	kafkaPub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		logger.Error().Err(err).Msg("initialise kafka publisher, falling back to log")
		return &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: logger}}}, func() {}
	}
	kafkaPub.WithBreaker(newBreaker(cfg, "kafka", logger))
	closeFn := func() {
		if err := kafkaPub.Close(); err != nil {
			logger.Error().Err(err).Msg("close kafka publisher")
		}
	}
	return &events.Bus{Publishers: []events.Publisher{kafkaPub}}, closeFn
}
