package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/api"
	"github.com/triage-ai/botsentry/internal/auth"
	"github.com/triage-ai/botsentry/internal/chread"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/learner"
	"github.com/triage-ai/botsentry/internal/scheduler"
	"github.com/triage-ai/botsentry/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection API, gRPC health and scheduled jobs",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting botsentry",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Float64("confident_threshold", cfg.Detection.ConfidentThreshold),
		zap.Bool("learner_enabled", cfg.Learner.Enabled),
		zap.Bool("sync_enabled", cfg.Sync.Enabled),
	)

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Warm the catalog; the health server reports SERVING once this succeeds.
	if _, err := a.catalog.Refresh(ctx); err != nil {
		logger.Warn("initial catalog load failed, will retry on first request", zap.Error(err))
	}

	writer := newEventWriter(ctx, cfg.ClickHouse, logger)
	defer writer.Close()

	deps := &api.Dependencies{
		Detector:    a.pipeline,
		Policy:      cfg.Policy.ServePolicy(),
		Verifier:    a.verifier,
		Store:       a.store,
		Catalog:     a.catalog,
		Learner:     a.learner,
		Syncer:      a.syncer,
		Writer:      writer,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
		Auth: auth.NewKeyAuthenticator(cfg.Auth.CacheTTL, logger,
			auth.KeySource{Name: "database", Store: a.store},
			auth.KeySource{Name: "config", Store: auth.NewStaticKeyStore(cfg.Auth.AdminKeyHashes)},
		),
	}
	if cfg.ClickHouse.DSN != "" {
		reader, err := chread.NewReader(cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = reader.Close() }()
			deps.Reader = reader
			logger.Info("clickhouse reader connected")
		}
	}

	sched := scheduler.New(logger)
	if err := scheduleJobs(sched, a); err != nil {
		return err
	}
	if cfg.Server.GRPCPort > 0 {
		sched.Add(server.NewHealthServer(fmt.Sprintf(":%d", cfg.Server.GRPCPort), a.catalog, logger))
	}
	supervisorDone := sched.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-supervisorDone:
		runErr = fmt.Errorf("supervisor stopped: %w", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("botsentry stopped")
	return runErr
}

// scheduleJobs registers the auto-learn and external-sync jobs that are
// enabled in config.
func scheduleJobs(sched *scheduler.Scheduler, a *app) error {
	if cfg.Learner.Enabled {
		var opts []scheduler.Option
		if cfg.Learner.RunAtStart {
			opts = append(opts, scheduler.RunAtStart())
		}
		if err := sched.Schedule(learner.LeaseName, cfg.Learner.Interval, learnJob(a.learner), opts...); err != nil {
			return err
		}
	}
	if cfg.Sync.Enabled {
		var opts []scheduler.Option
		if cfg.Sync.RunAtStart {
			opts = append(opts, scheduler.RunAtStart())
		}
		if err := sched.Schedule(extsync.LeaseName, cfg.Sync.Interval, syncJob(a.syncer), opts...); err != nil {
			return err
		}
	}
	return nil
}

func learnJob(l *learner.Learner) scheduler.Job {
	return func(ctx context.Context) error {
		_, err := l.ProcessPendingBots(ctx)
		return err
	}
}

// syncJob reports an error when any source failed so the job metrics count it.
func syncJob(s *extsync.Syncer) scheduler.Job {
	return func(ctx context.Context) error {
		var errs []error
		for name, res := range s.RunSync(ctx) {
			if res.Err != "" {
				errs = append(errs, fmt.Errorf("%s: %s", name, res.Err))
			}
		}
		return errors.Join(errs...)
	}
}
