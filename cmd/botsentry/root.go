package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/config"
)

var (
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "botsentry",
	Short: "Bot detection with a self-learning pattern catalog",
	Long: `botsentry classifies HTTP user agents as automated agents or humans.

It matches a Postgres-backed pattern catalog first, falls back to keyword
heuristics, queues uncertain agents for auto-learning and imports patterns
from external feeds such as Crawler-Detect.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger = mustBuildLogger(cfg.Log.Level)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML config (default: $"+config.ConfigPathEnvVar+" or ./botsentry.yaml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("botsentry version {{.Version}}\n")

	rootCmd.AddCommand(serveCmd, migrateCmd, learnCmd, syncCmd, detectCmd, adminKeyCmd)
}
