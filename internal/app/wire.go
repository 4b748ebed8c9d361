package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/openharvest/harvestd/internal/blob/s3"
	"github.com/openharvest/harvestd/internal/cache/redis"
	"github.com/openharvest/harvestd/internal/chain"
	"github.com/openharvest/harvestd/internal/config"
	"github.com/openharvest/harvestd/internal/crypto"
	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/gasless"
	"github.com/openharvest/harvestd/internal/notify"
	"github.com/openharvest/harvestd/internal/platform/pinata"
	"github.com/openharvest/harvestd/internal/platform/relay"
	"github.com/openharvest/harvestd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain and the gasless pipeline
	Chain     *chain.Client
	Forwarder *chain.Forwarder
	Reader    *chain.MarketplaceReader
	Facade    *gasless.Facade

	// Stores
	OperationStore domain.OperationStore
	ListingStore   domain.ListingStore
	OrderStore     domain.OrderStore

	// Caches and coordination
	ListingCache domain.ListingCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	EventBus     *redis.EventBus

	// Blob storage (nil unless archival is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// IPFS pinning and notifications
	Pinata   *pinata.Client
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OperationStore = postgres.NewOperationStore(pool)
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ListingCache = redis.NewListingCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient, logger)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewOperationArchiver(
			deps.BlobWriter,
			deps.OperationStore,
			cfg.Archive.RetentionDays,
			cfg.Archive.BatchSize,
			logger,
		)
	}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	forwarderAddr := common.HexToAddress(cfg.Chain.Forwarder)
	deps.Forwarder = chain.NewForwarder(
		chainClient.Backend(),
		forwarderAddr,
		cfg.Chain.ReceiptTimeout.Duration,
		logger,
	).WithPollInterval(cfg.Chain.PollInterval.Duration)

	deps.Reader = chain.NewMarketplaceReader(
		chainClient.Backend(),
		common.HexToAddress(cfg.Chain.Marketplace),
	)

	// --- IPFS pinning ---
	var pinataOpts []pinata.Option
	if cfg.Pinata.APIBase != "" {
		pinataOpts = append(pinataOpts, pinata.WithAPIBase(cfg.Pinata.APIBase))
	}
	if cfg.Pinata.Gateway != "" {
		pinataOpts = append(pinataOpts, pinata.WithGateway(cfg.Pinata.Gateway))
	}
	deps.Pinata = pinata.NewClient(cfg.Pinata.JWT, logger, pinataOpts...)

	// --- Gasless pipeline ---
	dom := crypto.ForwarderDomain{
		ChainID:           chainClient.ChainID(),
		VerifyingContract: forwarderAddr,
	}

	signer, err := buildSigner(ctx, cfg.Wallet, dom, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	builder := gasless.NewBuilder(targetBindings(cfg.Chain), cfg.Gasless.DeadlineWindow.Duration)
	guard := gasless.NewChainGuard(chainClient.ChainID(), logger)
	relayClient := relay.NewClient(cfg.Relay.BaseURL, logger)

	eventBus := deps.EventBus
	deps.Facade = gasless.New(
		signer,
		guard,
		deps.Forwarder,
		builder,
		relayClient,
		deps.Forwarder,
		gasless.Options{
			MaxAttempts:          cfg.Gasless.MaxAttempts,
			RateLimitBackoff:     cfg.Gasless.RateLimitBackoff.Duration,
			NonceConflictBackoff: cfg.Gasless.NonceConflictBackoff.Duration,
			SettleDelay:          cfg.Gasless.SettleDelay.Duration,
		},
		logger,
	).
		WithAudit(deps.OperationStore).
		WithRateLimiter(deps.RateLimiter, cfg.Gasless.RateLimitPerMinute).
		WithEvents(func(ev domain.OperationEvent) {
			if err := eventBus.Publish(context.Background(), ev); err != nil {
				logger.Warn("operation event publish failed", slog.String("error", err.Error()))
			}
		})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// buildSigner selects the signing backend from configuration: "local" loads
// an in-process key, "wallet" connects to an external provider.
func buildSigner(ctx context.Context, cfg config.WalletConfig, dom crypto.ForwarderDomain, logger *slog.Logger) (gasless.Signer, error) {
	switch cfg.Signer {
	case "local", "":
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.PrivateKey,
			EncryptedKeyPath: cfg.EncryptedKeyPath,
			KeyPassword:      cfg.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("load local key: %w", err)
		}
		return gasless.NewLocalSigner(key, dom), nil
	case "wallet":
		return gasless.NewWalletSigner(ctx, cfg.ProviderURL, common.HexToAddress(cfg.Address), dom, logger)
	default:
		return nil, fmt.Errorf("unknown signer backend %q", cfg.Signer)
	}
}

// targetBindings maps the configured contract addresses to their ABIs. Only
// deployed (non-empty) targets enter the allow-list; calls against the rest
// fail with domain.ErrUnknownTarget before any signature prompt.
func targetBindings(cfg config.ChainConfig) map[domain.Target]gasless.TargetBinding {
	bindings := map[domain.Target]gasless.TargetBinding{
		domain.TargetMarketplace: {
			Address: common.HexToAddress(cfg.Marketplace),
			ABI:     chain.TargetABIs[domain.TargetMarketplace],
		},
	}
	for target, addr := range map[domain.Target]string{
		domain.TargetAmbassadorRewards:  cfg.AmbassadorRewards,
		domain.TargetDisputeResolution:  cfg.DisputeResolution,
		domain.TargetGovernmentRequests: cfg.GovernmentRequests,
	} {
		if addr != "" {
			bindings[target] = gasless.TargetBinding{
				Address: common.HexToAddress(addr),
				ABI:     chain.TargetABIs[target],
			}
		}
	}
	return bindings
}
