package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/menumaster-admin/internal/auth"
	"github.com/noah-isme/menumaster-admin/internal/config"
	"github.com/noah-isme/menumaster-admin/internal/events"
	"github.com/noah-isme/menumaster-admin/internal/lock"
	"github.com/noah-isme/menumaster-admin/internal/obs"
	"github.com/noah-isme/menumaster-admin/internal/pricing"
	"github.com/noah-isme/menumaster-admin/internal/pricing/pgstore"
)

func main() {
	var (
		makerID   = flag.String("maker", "seed-maker", "actor id recorded as the maker of the sample rules")
		checkerID = flag.String("checker", "seed-checker", "actor id recorded as the approver of the sample rules")
		lockTTL   = flag.Duration("lock-ttl", 2*time.Minute, "how long the seed lock may be held")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("tool", "seeder").Logger()
	if cfg.RegistryDriver != config.RegistryPostgres {
		logger.Fatal().Msg("DATABASE_URL is required; the in-memory registry cannot be seeded from outside the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	workflow, err := pricing.NewWorkflow(pricing.WorkflowConfig{
		Registry: pgstore.New(pool),
		Events:   &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: logger}}},
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise workflow")
	}

	maker := auth.Actor{ID: *makerID, Role: auth.RoleMaker}
	checker := auth.Actor{ID: *checkerID, Role: auth.RoleChecker}
	seed := func(ctx context.Context) error {
		created, err := pricing.Seed(ctx, workflow, maker, checker, pricing.SampleRules())
		for _, rule := range created {
			logger.Info().Str("rule_id", rule.ID).Str("name", rule.Name).Str("status", string(rule.Status)).Msg("seeded rule")
		}
		if err == nil && len(created) == 0 {
			logger.Info().Msg("sample rules already present")
		}
		return err
	}

	if cfg.RedisURL == "" {
		err = seed(ctx)
	} else {
		opts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			logger.Fatal().Err(perr).Msg("parse redis url")
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		locker := lock.Locker{R: client, Prefix: "menumaster:"}
		err = locker.TryWithLock(ctx, "seed-lock", *lockTTL, seed)
		if errors.Is(err, lock.ErrNotAcquired) {
			logger.Info().Msg("another seeder holds the lock, skipping")
			return
		}
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("seed sample rules")
	}
	logger.Info().Msg("seeding completed")
}
