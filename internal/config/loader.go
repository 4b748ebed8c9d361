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
// built-in defaults, applies HARVESTD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known HARVESTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.Signer, "HARVESTD_WALLET_SIGNER")
	setStr(&cfg.Wallet.PrivateKey, "HARVESTD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "HARVESTD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "HARVESTD_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.ProviderURL, "HARVESTD_WALLET_PROVIDER_URL")
	setStr(&cfg.Wallet.Address, "HARVESTD_WALLET_ADDRESS")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "HARVESTD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "HARVESTD_CHAIN_ID")
	setStr(&cfg.Chain.Forwarder, "HARVESTD_CHAIN_FORWARDER")
	setStr(&cfg.Chain.Marketplace, "HARVESTD_CHAIN_MARKETPLACE")
	setStr(&cfg.Chain.AmbassadorRewards, "HARVESTD_CHAIN_AMBASSADOR_REWARDS")
	setStr(&cfg.Chain.DisputeResolution, "HARVESTD_CHAIN_DISPUTE_RESOLUTION")
	setStr(&cfg.Chain.GovernmentRequests, "HARVESTD_CHAIN_GOVERNMENT_REQUESTS")
	setDuration(&cfg.Chain.ReceiptTimeout, "HARVESTD_CHAIN_RECEIPT_TIMEOUT")
	setDuration(&cfg.Chain.PollInterval, "HARVESTD_CHAIN_POLL_INTERVAL")

	// ── Gasless ──
	setInt(&cfg.Gasless.MaxAttempts, "HARVESTD_GASLESS_MAX_ATTEMPTS")
	setDuration(&cfg.Gasless.RateLimitBackoff, "HARVESTD_GASLESS_RATE_LIMIT_BACKOFF")
	setDuration(&cfg.Gasless.NonceConflictBackoff, "HARVESTD_GASLESS_NONCE_CONFLICT_BACKOFF")
	setDuration(&cfg.Gasless.SettleDelay, "HARVESTD_GASLESS_SETTLE_DELAY")
	setDuration(&cfg.Gasless.DeadlineWindow, "HARVESTD_GASLESS_DEADLINE_WINDOW")
	setInt(&cfg.Gasless.RateLimitPerMinute, "HARVESTD_GASLESS_RATE_LIMIT_PER_MINUTE")

	// ── Relay ──
	setStr(&cfg.Relay.BaseURL, "HARVESTD_RELAY_BASE_URL")

	// ── Pinata ──
	setStr(&cfg.Pinata.JWT, "HARVESTD_PINATA_JWT")
	setStr(&cfg.Pinata.APIBase, "HARVESTD_PINATA_API_BASE")
	setStr(&cfg.Pinata.Gateway, "HARVESTD_PINATA_GATEWAY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HARVESTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HARVESTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HARVESTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HARVESTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HARVESTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HARVESTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HARVESTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HARVESTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HARVESTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HARVESTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HARVESTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HARVESTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HARVESTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HARVESTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HARVESTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HARVESTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HARVESTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HARVESTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "HARVESTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HARVESTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HARVESTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HARVESTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HARVESTD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "HARVESTD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "HARVESTD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "HARVESTD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "HARVESTD_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HARVESTD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HARVESTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HARVESTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HARVESTD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "HARVESTD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "HARVESTD_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HARVESTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HARVESTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HARVESTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HARVESTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HARVESTD_MODE")
	setStr(&cfg.LogLevel, "HARVESTD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
