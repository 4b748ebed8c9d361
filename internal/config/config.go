// Package config defines the top-level configuration for the harvestd
// marketplace service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HARVESTD_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Gasless  GaslessConfig  `toml:"gasless"`
	Relay    RelayConfig    `toml:"relay"`
	Pinata   PinataConfig   `toml:"pinata"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig selects and parameterizes the signing backend.
type WalletConfig struct {
	// Signer selects the backend: "local" (in-process key) or "wallet"
	// (external provider via eth_signTypedData_v4).
	Signer           string `toml:"signer"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ProviderURL      string `toml:"provider_url"`
	Address          string `toml:"address"`
}

// ChainConfig holds the RPC endpoint and deployed contract addresses.
type ChainConfig struct {
	RPCURL             string `toml:"rpc_url"`
	ChainID            int64  `toml:"chain_id"`
	Forwarder          string `toml:"forwarder"`
	Marketplace        string `toml:"marketplace"`
	AmbassadorRewards  string `toml:"ambassador_rewards"`
	DisputeResolution  string `toml:"dispute_resolution"`
	GovernmentRequests string `toml:"government_requests"`

	ReceiptTimeout duration `toml:"receipt_timeout"`
	PollInterval   duration `toml:"poll_interval"`
}

// GaslessConfig tunes the forward-request pipeline.
type GaslessConfig struct {
	MaxAttempts          int      `toml:"max_attempts"`
	RateLimitBackoff     duration `toml:"rate_limit_backoff"`
	NonceConflictBackoff duration `toml:"nonce_conflict_backoff"`
	SettleDelay          duration `toml:"settle_delay"`
	DeadlineWindow       duration `toml:"deadline_window"`
	RateLimitPerMinute   int      `toml:"rate_limit_per_minute"`
}

// RelayConfig holds the relay service endpoint.
type RelayConfig struct {
	BaseURL string `toml:"base_url"`
}

// PinataConfig holds IPFS pinning credentials and endpoints.
type PinataConfig struct {
	JWT     string `toml:"jwt"`
	APIBase string `toml:"api_base"`
	Gateway string `toml:"gateway"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the terminal-operation archival job.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"` // if empty, authentication is disabled
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Wallet: WalletConfig{
			Signer: "local",
		},
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			ChainID:        80002, // Polygon Amoy
			ReceiptTimeout: duration{60 * time.Second},
			PollInterval:   duration{2 * time.Second},
		},
		Gasless: GaslessConfig{
			MaxAttempts:          4,
			RateLimitBackoff:     duration{60 * time.Second},
			NonceConflictBackoff: duration{10 * time.Second},
			SettleDelay:          duration{2 * time.Second},
			DeadlineWindow:       duration{10 * time.Minute},
			RateLimitPerMinute:   30,
		},
		Pinata: PinataConfig{
			APIBase: "https://api.pinata.cloud",
			Gateway: "https://gateway.pinata.cloud/ipfs",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "harvestd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "harvestd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			BatchSize:     500,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"operation_failed", "order_disputed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSigners = map[string]bool{
	"local":  true,
	"wallet": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet
	switch strings.ToLower(c.Wallet.Signer) {
	case "local":
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for signer \"local\"")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	case "wallet":
		if c.Wallet.ProviderURL == "" {
			errs = append(errs, "wallet: provider_url is required for signer \"wallet\"")
		}
		if !common.IsHexAddress(c.Wallet.Address) {
			errs = append(errs, fmt.Sprintf("wallet: address %q is not a valid 0x address", c.Wallet.Address))
		}
	default:
		if !validSigners[strings.ToLower(c.Wallet.Signer)] {
			errs = append(errs, fmt.Sprintf("wallet: unknown signer %q (valid: local, wallet)", c.Wallet.Signer))
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.Forwarder) {
		errs = append(errs, fmt.Sprintf("chain: forwarder %q is not a valid 0x address", c.Chain.Forwarder))
	}
	if !common.IsHexAddress(c.Chain.Marketplace) {
		errs = append(errs, fmt.Sprintf("chain: marketplace %q is not a valid 0x address", c.Chain.Marketplace))
	}
	for name, addr := range map[string]string{
		"ambassador_rewards":  c.Chain.AmbassadorRewards,
		"dispute_resolution":  c.Chain.DisputeResolution,
		"government_requests": c.Chain.GovernmentRequests,
	} {
		// Optional targets: empty means not deployed, anything else must parse.
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("chain: %s %q is not a valid 0x address", name, addr))
		}
	}
	if c.Chain.ReceiptTimeout.Duration <= 0 {
		errs = append(errs, "chain: receipt_timeout must be > 0")
	}
	if c.Chain.PollInterval.Duration <= 0 {
		errs = append(errs, "chain: poll_interval must be > 0")
	}

	// Gasless
	if c.Gasless.MaxAttempts < 1 {
		errs = append(errs, "gasless: max_attempts must be >= 1")
	}
	if c.Gasless.DeadlineWindow.Duration <= 0 {
		errs = append(errs, "gasless: deadline_window must be > 0")
	}

	// Relay
	if c.Relay.BaseURL == "" {
		errs = append(errs, "relay: base_url must not be empty")
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
