// Package config defines the top-level configuration for the surebet engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SUREBOT_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Matching MatchingConfig `toml:"matching"`
	Server   ServerConfig   `toml:"server"`
	Ingest   IngestConfig   `toml:"ingest"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds opportunity-engine parameters.
type EngineConfig struct {
	// MinProfitThreshold is the minimum guaranteed profit, in percent, for an
	// opportunity to be surfaced.
	MinProfitThreshold float64  `toml:"min_profit_threshold"`
	OpportunityTTL     duration `toml:"opportunity_ttl"`
	MaxHistoryEntries  int      `toml:"max_history_entries"`
	StalenessWindow    duration `toml:"staleness_window"`
	SweepInterval      duration `toml:"sweep_interval"`
	QueueSize          int      `toml:"queue_size"`
	// RateWindow is the number of recent quote receipts retained for the
	// quotes-per-minute statistic.
	RateWindow int `toml:"rate_window"`
}

// MatchingConfig holds name-resolution parameters.
type MatchingConfig struct {
	// TeamNameMatchRatio is the 0-100 similarity score a fuzzy candidate must
	// reach to join an existing canonical team name.
	TeamNameMatchRatio int `toml:"team_name_match_ratio"`
	// SimilarStringsThreshold is the 0-1 threshold for the secondary
	// near-identical-spelling check.
	SimilarStringsThreshold float64 `toml:"similar_strings_threshold"`
	// AmbiguityMargin is the score gap, in ratio points, below which two fuzzy
	// candidates count as ambiguous.
	AmbiguityMargin float64 `toml:"ambiguity_margin"`
	// AliasFile optionally points at a JSON file of extra label aliases merged
	// over the embedded defaults.
	AliasFile string `toml:"alias_file"`
	// IdentityTTL bounds how long an unseen canonical team name stays in the
	// resolver registry. Must exceed engine.staleness_window.
	IdentityTTL duration `toml:"identity_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitRPS caps quote-ingest requests per second per client. 0
	// disables rate limiting.
	RateLimitRPS int  `toml:"rate_limit_rps"`
	WSEnabled    bool `toml:"ws_enabled"`
}

// IngestConfig holds quote-ingest authentication and stream parameters.
type IngestConfig struct {
	// HMACKey identifies the signing key carried in X-Odds-Key. Empty disables
	// request-signature verification.
	HMACKey string `toml:"hmac_key"`
	// HMACSecret is the raw shared secret. Mutually exclusive with
	// EncryptedSecretPath.
	HMACSecret string `toml:"hmac_secret"`
	// EncryptedSecretPath points at a secret encrypted at rest; it is
	// decrypted at startup with SecretPassword.
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	// Stream is the Redis stream the feed consumer reads quotes from.
	Stream          string `toml:"stream"`
	ConsumerEnabled bool   `toml:"consumer_enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the history
// archive. The engine is fully functional with Enabled=false.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for snapshot export
// and history archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SnapshotConfig holds snapshot-export and history-archival parameters.
type SnapshotConfig struct {
	// Interval between periodic snapshot exports. 0 disables the scheduler.
	Interval duration `toml:"interval"`
	// LocalPath is where snapshots are written on disk. Empty disables local
	// export.
	LocalPath string `toml:"local_path"`
	// S3Prefix is the object-key prefix for snapshot uploads when S3 is
	// enabled.
	S3Prefix         string `toml:"s3_prefix"`
	ExportOnShutdown bool   `toml:"export_on_shutdown"`
	// ArchiveRetentionDays: history rows older than this are archived to S3
	// and deleted from Postgres.
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MinProfitThreshold: 0.5,
			OpportunityTTL:     duration{30 * time.Minute},
			MaxHistoryEntries:  1000,
			StalenessWindow:    duration{15 * time.Minute},
			SweepInterval:      duration{30 * time.Second},
			QueueSize:          512,
			RateWindow:         1000,
		},
		Matching: MatchingConfig{
			TeamNameMatchRatio:      95,
			SimilarStringsThreshold: 0.9,
			AmbiguityMargin:         1.0,
			IdentityTTL:             duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8000",
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitRPS: 5,
			WSEnabled:    true,
		},
		Ingest: IngestConfig{
			Stream:          "stream:quotes",
			ConsumerEnabled: false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "surebot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity.created", "opportunity.superseded"},
		},
		Snapshot: SnapshotConfig{
			Interval:             duration{10 * time.Minute},
			S3Prefix:             "snapshots",
			ExportOnShutdown:     true,
			ArchiveRetentionDays: 30,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Mode:     "all",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"all":     true,
	"engine":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: all, engine, archive)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.MinProfitThreshold < 0 {
		errs = append(errs, "engine: min_profit_threshold must be >= 0")
	}
	if c.Engine.OpportunityTTL.Duration <= 0 {
		errs = append(errs, "engine: opportunity_ttl must be > 0")
	}
	if c.Engine.MaxHistoryEntries < 1 {
		errs = append(errs, "engine: max_history_entries must be >= 1")
	}
	if c.Engine.StalenessWindow.Duration <= 0 {
		errs = append(errs, "engine: staleness_window must be > 0")
	}
	if c.Engine.SweepInterval.Duration <= 0 {
		errs = append(errs, "engine: sweep_interval must be > 0")
	}
	if c.Engine.QueueSize < 1 {
		errs = append(errs, "engine: queue_size must be >= 1")
	}
	if c.Engine.RateWindow < 1 {
		errs = append(errs, "engine: rate_window must be >= 1")
	}

	// Matching
	if c.Matching.TeamNameMatchRatio < 0 || c.Matching.TeamNameMatchRatio > 100 {
		errs = append(errs, fmt.Sprintf("matching: team_name_match_ratio must be 0-100, got %d", c.Matching.TeamNameMatchRatio))
	}
	if c.Matching.SimilarStringsThreshold < 0 || c.Matching.SimilarStringsThreshold > 1 {
		errs = append(errs, fmt.Sprintf("matching: similar_strings_threshold must be 0-1, got %g", c.Matching.SimilarStringsThreshold))
	}
	if c.Matching.AmbiguityMargin < 0 {
		errs = append(errs, "matching: ambiguity_margin must be >= 0")
	}
	if c.Matching.IdentityTTL.Duration > 0 && c.Matching.IdentityTTL.Duration <= c.Engine.StalenessWindow.Duration {
		errs = append(errs, "matching: identity_ttl must exceed engine.staleness_window")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty when enabled")
		}
		if c.Server.RateLimitRPS < 0 {
			errs = append(errs, "server: rate_limit_rps must be >= 0")
		}
	}

	// Ingest — the secret may come from exactly one place, and an encrypted
	// secret needs its password.
	if c.Ingest.HMACSecret != "" && c.Ingest.EncryptedSecretPath != "" {
		errs = append(errs, "ingest: hmac_secret and encrypted_secret_path are mutually exclusive")
	}
	if c.Ingest.EncryptedSecretPath != "" && c.Ingest.SecretPassword == "" {
		errs = append(errs, "ingest: secret_password is required when encrypted_secret_path is set")
	}
	if c.Ingest.HMACKey != "" && c.Ingest.HMACSecret == "" && c.Ingest.EncryptedSecretPath == "" {
		errs = append(errs, "ingest: hmac_key requires hmac_secret or encrypted_secret_path")
	}
	if c.Ingest.ConsumerEnabled && c.Ingest.Stream == "" {
		errs = append(errs, "ingest: stream must not be empty when consumer_enabled")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Notify — both Telegram fields must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Snapshot
	if c.Snapshot.Interval.Duration < 0 {
		errs = append(errs, "snapshot: interval must be >= 0")
	}
	if c.Snapshot.ArchiveRetentionDays < 1 {
		errs = append(errs, "snapshot: archive_retention_days must be >= 1")
	}

	// Archive mode moves Postgres history rows into S3; both stores are
	// mandatory there.
	if strings.ToLower(c.Mode) == "archive" {
		if !c.Postgres.Enabled {
			errs = append(errs, "postgres: must be enabled for archive mode")
		}
		if !c.S3.Enabled {
			errs = append(errs, "s3: must be enabled for archive mode")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
