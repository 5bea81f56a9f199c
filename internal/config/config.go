// Package config loads botsentry configuration from defaults, an optional
// YAML file and BOTSENTRY_* environment variables, in that order.
package config

import (
	"time"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/engine/detectors"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/learner"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Postgres   PostgresConfig   `koanf:"postgres"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse"`
	Redis      RedisConfig      `koanf:"redis"`
	Detection  DetectionConfig  `koanf:"detection"`
	Learner    LearnerConfig    `koanf:"learner"`
	Sync       SyncConfig       `koanf:"sync"`
	Policy     PolicyConfig     `koanf:"policy"`
	Auth       AuthConfig       `koanf:"auth"`
	IPVerify   IPVerifyConfig   `koanf:"ipverify"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	HTTPPort        int           `koanf:"http_port" validate:"min=1,max=65535"`
	GRPCPort        int           `koanf:"grpc_port" validate:"min=0,max=65535"` // 0 disables the health server
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// PostgresConfig holds the pattern store connection.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// ClickHouseConfig holds the detection event store connection. An empty DSN
// logs events instead.
type ClickHouseConfig struct {
	DSN string `koanf:"dsn"`
}

// RedisConfig holds the job lease backend. An empty Addr uses in-process
// leases.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db" validate:"min=0"`
	KeyPrefix string `koanf:"key_prefix"`
}

// DetectionConfig tunes the detection pipeline.
type DetectionConfig struct {
	ConfidentThreshold float64       `koanf:"confident_threshold" validate:"gt=0,lte=1"`
	UnitWeight         float64       `koanf:"unit_weight" validate:"gt=0,lte=1"`
	RecordUnknown      bool          `koanf:"record_unknown"`
	RecordTimeout      time.Duration `koanf:"record_timeout" validate:"gt=0"`
	CatalogTTL         time.Duration `koanf:"catalog_ttl" validate:"gt=0"`
}

// LearnerConfig tunes the auto-learn job.
type LearnerConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	MinProbability float64       `koanf:"min_probability" validate:"gt=0,lte=1"`
	BatchSize      int           `koanf:"batch_size" validate:"min=1,max=10000"`
	RunAtStart     bool          `koanf:"run_at_start"`
}

// SyncConfig tunes the external sync job.
type SyncConfig struct {
	Enabled         bool             `koanf:"enabled"`
	Interval        time.Duration    `koanf:"interval" validate:"gt=0"`
	Timeout         time.Duration    `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32           `koanf:"breaker_failures" validate:"min=1"`
	BreakerCooldown time.Duration    `koanf:"breaker_cooldown" validate:"gt=0"`
	RunAtStart      bool             `koanf:"run_at_start"`
	Sources         []extsync.Source `koanf:"sources" validate:"dive"`
}

// PolicyConfig configures serving decisions.
type PolicyConfig struct {
	BlockedAgents []string `koanf:"blocked_agents"`
}

// AuthConfig configures admin API access.
type AuthConfig struct {
	AdminKeyHashes []string      `koanf:"admin_key_hashes"` // bcrypt hashes
	CacheTTL       time.Duration `koanf:"cache_ttl" validate:"gt=0"`
}

// IPVerifyConfig adds address ranges on top of the built-in table.
type IPVerifyConfig struct {
	ExtraRanges map[string][]string `koanf:"extra_ranges"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			GRPCPort:        9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{KeyPrefix: "botsentry:"},
		Detection: DetectionConfig{
			ConfidentThreshold: engine.DefaultConfidentThreshold,
			UnitWeight:         detectors.DefaultUnitWeight,
			RecordUnknown:      true,
			RecordTimeout:      250 * time.Millisecond,
			CatalogTTL:         time.Minute,
		},
		Learner: LearnerConfig{
			Enabled:        true,
			Interval:       24 * time.Hour,
			MinProbability: learner.DefaultConfig().MinProbability,
			BatchSize:      learner.DefaultConfig().BatchSize,
		},
		Sync: SyncConfig{
			Enabled:         true,
			Interval:        7 * 24 * time.Hour,
			Timeout:         extsync.DefaultConfig().Timeout,
			BreakerFailures: extsync.DefaultConfig().BreakerFailures,
			BreakerCooldown: extsync.DefaultConfig().BreakerCooldown,
			Sources:         append([]extsync.Source(nil), extsync.DefaultSources...),
		},
		Auth: AuthConfig{CacheTTL: 30 * time.Second},
	}
}

// Pipeline returns the pipeline settings.
func (c DetectionConfig) Pipeline() engine.PipelineConfig {
	return engine.PipelineConfig{
		ConfidentThreshold: c.ConfidentThreshold,
		RecordUnknown:      c.RecordUnknown,
		RecordTimeout:      c.RecordTimeout,
	}
}

// Heuristic returns the heuristic detector settings.
func (c DetectionConfig) Heuristic() detectors.HeuristicConfig {
	return detectors.HeuristicConfig{
		UnitWeight:         c.UnitWeight,
		ConfidentThreshold: c.ConfidentThreshold,
	}
}

// Learner returns the auto-learner settings.
func (c LearnerConfig) Learner() learner.Config {
	return learner.Config{
		MinProbability: c.MinProbability,
		BatchSize:      c.BatchSize,
	}
}

// Syncer returns the external sync settings.
func (c SyncConfig) Syncer() extsync.Config {
	return extsync.Config{
		Timeout:         c.Timeout,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}
}

// ServePolicy returns the serving policy.
func (c PolicyConfig) ServePolicy() engine.ServePolicy {
	sp := engine.DefaultServePolicy()
	sp.BlockedAgents = c.BlockedAgents
	return sp
}
