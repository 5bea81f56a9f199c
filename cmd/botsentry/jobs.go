package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/triage-ai/botsentry/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres and ClickHouse schema and seed the default catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, s, err := openStore(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := migrate(ctx, s, logger); err != nil {
			return err
		}

		if cfg.ClickHouse.DSN != "" {
			w, err := storage.NewClickHouseWriter(cfg.ClickHouse.DSN, logger)
			if err != nil {
				return fmt.Errorf("clickhouse: %w", err)
			}
			defer w.Close()
			if err := w.Migrate(ctx); err != nil {
				return fmt.Errorf("clickhouse migrate: %w", err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
		return nil
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one auto-learning batch now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		promoted, err := a.learner.ProcessPendingBots(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted %d new patterns\n", promoted)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import patterns from every configured external source now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		results := a.syncer.RunSync(ctx)
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "sync skipped: another run holds the lease")
			return nil
		}
		return printJSON(cmd, results)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
