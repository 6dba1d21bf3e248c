package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SUREBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SUREBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.MinProfitThreshold, "SUREBOT_ENGINE_MIN_PROFIT_THRESHOLD")
	setDuration(&cfg.Engine.OpportunityTTL, "SUREBOT_ENGINE_OPPORTUNITY_TTL")
	setInt(&cfg.Engine.MaxHistoryEntries, "SUREBOT_ENGINE_MAX_HISTORY_ENTRIES")
	setDuration(&cfg.Engine.StalenessWindow, "SUREBOT_ENGINE_STALENESS_WINDOW")
	setDuration(&cfg.Engine.SweepInterval, "SUREBOT_ENGINE_SWEEP_INTERVAL")
	setInt(&cfg.Engine.QueueSize, "SUREBOT_ENGINE_QUEUE_SIZE")
	setInt(&cfg.Engine.RateWindow, "SUREBOT_ENGINE_RATE_WINDOW")

	// ── Matching ──
	setInt(&cfg.Matching.TeamNameMatchRatio, "SUREBOT_MATCHING_TEAM_NAME_MATCH_RATIO")
	setFloat64(&cfg.Matching.SimilarStringsThreshold, "SUREBOT_MATCHING_SIMILAR_STRINGS_THRESHOLD")
	setFloat64(&cfg.Matching.AmbiguityMargin, "SUREBOT_MATCHING_AMBIGUITY_MARGIN")
	setStr(&cfg.Matching.AliasFile, "SUREBOT_MATCHING_ALIAS_FILE")
	setDuration(&cfg.Matching.IdentityTTL, "SUREBOT_MATCHING_IDENTITY_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SUREBOT_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SUREBOT_SERVER_ADDR")
	setStr(&cfg.Server.ApiKey, "SUREBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SUREBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitRPS, "SUREBOT_SERVER_RATE_LIMIT_RPS")
	setBool(&cfg.Server.WSEnabled, "SUREBOT_SERVER_WS_ENABLED")

	// ── Ingest ──
	setStr(&cfg.Ingest.HMACKey, "SUREBOT_INGEST_HMAC_KEY")
	setStr(&cfg.Ingest.HMACSecret, "SUREBOT_INGEST_HMAC_SECRET")
	setStr(&cfg.Ingest.EncryptedSecretPath, "SUREBOT_INGEST_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Ingest.SecretPassword, "SUREBOT_INGEST_SECRET_PASSWORD")
	setStr(&cfg.Ingest.Stream, "SUREBOT_INGEST_STREAM")
	setBool(&cfg.Ingest.ConsumerEnabled, "SUREBOT_INGEST_CONSUMER_ENABLED")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SUREBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUREBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUREBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SUREBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SUREBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SUREBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SUREBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SUREBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SUREBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SUREBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SUREBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SUREBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SUREBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SUREBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "SUREBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "SUREBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SUREBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SUREBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SUREBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SUREBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUREBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUREBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUREBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUREBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SUREBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SUREBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SUREBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SUREBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SUREBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SUREBOT_NOTIFY_EVENTS")

	// ── Snapshot ──
	setDuration(&cfg.Snapshot.Interval, "SUREBOT_SNAPSHOT_INTERVAL")
	setStr(&cfg.Snapshot.LocalPath, "SUREBOT_SNAPSHOT_LOCAL_PATH")
	setStr(&cfg.Snapshot.S3Prefix, "SUREBOT_SNAPSHOT_S3_PREFIX")
	setBool(&cfg.Snapshot.ExportOnShutdown, "SUREBOT_SNAPSHOT_EXPORT_ON_SHUTDOWN")
	setInt(&cfg.Snapshot.ArchiveRetentionDays, "SUREBOT_SNAPSHOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Snapshot.ArchiveInterval, "SUREBOT_SNAPSHOT_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUREBOT_MODE")
	setStr(&cfg.LogLevel, "SUREBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
