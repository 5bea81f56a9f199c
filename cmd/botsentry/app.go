package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/catalog"
	"github.com/triage-ai/botsentry/internal/config"
	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/engine/detectors"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/ipverify"
	"github.com/triage-ai/botsentry/internal/lease"
	"github.com/triage-ai/botsentry/internal/learner"
	"github.com/triage-ai/botsentry/internal/storage"
	"github.com/triage-ai/botsentry/internal/store"
)

// app holds the components shared by the serve, learn, sync and detect
// commands.
type app struct {
	db       *sql.DB
	store    *store.Store
	catalog  *catalog.Catalog
	pipeline *engine.Pipeline
	locker   lease.Locker
	learner  *learner.Learner
	syncer   *extsync.Syncer
	verifier *ipverify.Verifier

	closers []func()
}

// openStore connects to Postgres and returns the store.
func openStore(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, *store.Store, error) {
	if cfg.DSN == "" {
		return nil, nil, errors.New("postgres.dsn is required (BOTSENTRY_POSTGRES_DSN)")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, store.NewStore(db), nil
}

// openApp wires the detection pipeline and the background jobs.
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, s, err := openStore(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, store: s}
	a.closers = append(a.closers, func() { _ = db.Close() })
	logger.Info("postgres connected")

	if cfg.Postgres.MigrateOnStart {
		if err := migrate(ctx, s, logger); err != nil {
			a.close()
			return nil, err
		}
	}

	a.locker = newLocker(ctx, cfg.Redis, logger, a)

	a.verifier, err = ipverify.New(cfg.IPVerify.ExtraRanges)
	if err != nil {
		a.close()
		return nil, err
	}

	a.catalog = catalog.New(s, cfg.Detection.CatalogTTL, logger)
	a.pipeline = engine.NewPipeline(
		detectors.NewKnownPatternDetector(a.catalog, logger),
		detectors.NewHeuristicDetector(cfg.Detection.Heuristic()),
		s,
		cfg.Detection.Pipeline(),
		logger,
	)
	a.learner = learner.New(s, a.catalog, a.locker, cfg.Learner.Learner(), logger)
	a.syncer = extsync.New(s, a.catalog, a.locker, nil, cfg.Sync.Sources, cfg.Sync.Syncer(), logger)
	return a, nil
}

// newLocker returns a Redis lease when redis.addr is set and reachable,
// otherwise an in-process one.
func newLocker(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger, a *app) lease.Locker {
	if cfg.Addr == "" {
		logger.Info("no redis.addr set, using in-process job leases")
		return lease.NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, falling back to in-process job leases", zap.Error(err))
		_ = client.Close()
		return lease.NewLocalLocker()
	}

	a.closers = append(a.closers, func() { _ = client.Close() })
	logger.Info("redis connected", zap.String("addr", cfg.Addr))
	return lease.NewRedisLocker(client, cfg.KeyPrefix)
}

// newEventWriter returns a ClickHouse writer when clickhouse.dsn is set and
// reachable, otherwise a log writer.
func newEventWriter(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) storage.EventWriter {
	if cfg.DSN == "" {
		logger.Info("no clickhouse.dsn set, using log writer")
		return storage.NewLogWriter(logger)
	}

	chWriter, err := storage.NewClickHouseWriter(cfg.DSN, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	if err := chWriter.Migrate(ctx); err != nil {
		logger.Warn("clickhouse migration failed", zap.Error(err))
	}
	logger.Info("clickhouse writer connected")
	return chWriter
}

// migrate applies the Postgres schema and seeds the default catalog.
func migrate(ctx context.Context, s *store.Store, logger *zap.Logger) error {
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	added, err := s.SeedPatterns(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("postgres schema ready", zap.Int("seeded_patterns", added))
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
