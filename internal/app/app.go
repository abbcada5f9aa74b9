package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/api"
	"github.com/ayo6706/wallet-ledger/internal/api/handler"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/db"
	"github.com/ayo6706/wallet-ledger/internal/fees"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/rates"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/ayo6706/wallet-ledger/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const notificationTimeout = 5 * time.Second

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.Pinger{}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	checks["database"] = store
	logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))

	// Redis is optional; without it idempotency falls back to the table and
	// the rate cache stays in memory. A typed nil must never reach the
	// redis.Cmdable parameters below.
	var cache redis.Cmdable
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	idemStore := idempotency.NewStore(cache, store.Queries(), cfg.IdempotencyTTL)
	rateProvider := newRateProvider(cfg, cache, store.Queries())
	disburser := newDisburser(cfg)

	notifier, closeNotifier := newNotifier(cfg)
	dispatcher := notify.NewDispatcher(notifier, notificationTimeout)

	engine := fees.NewEngine(fees.WithFreeTransfers(cfg.FeeFreeTransfers))
	audit := service.NewAuditService()
	ledger := service.NewLedgerService(store)
	journal := service.NewJournalService(store, audit)
	settler := service.NewSettler(ledger, journal, audit)
	if cfg.WebhookSkipSignature {
		logger.Warn("webhook signature verification disabled", zap.String("storage_driver", cfg.StorageDriver))
	}
	webhooks := service.NewWebhookService(store, journal, settler, dispatcher, cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	reconciler := service.NewReconciliationService(store, journal, webhooks, disburser).
		WithStatusTimeout(cfg.DisbursementTimeout)
	deposits := service.NewDepositService(store, ledger, journal, settler)

	services := api.Services{
		Ledger:  ledger,
		Journal: journal,
		Transfers: service.NewTransferService(store, ledger, journal, settler, engine, disburser, dispatcher).
			WithDisbursementTimeout(cfg.DisbursementTimeout).
			WithFeeWindow(cfg.FeeWindow),
		Conversions: service.NewConversionService(store, ledger, journal, rateProvider, engine, dispatcher).
			WithRateTimeout(cfg.RateTimeout),
		Deposits:        deposits,
		Webhooks:        webhooks,
		Reconciler:      reconciler,
		ExternalWallets: service.NewExternalWalletService(store),
	}

	reconWorker := worker.NewReconciliationWorker(reconciler).
		WithInterval(cfg.ReconciliationInterval).
		WithStaleAfter(cfg.ReconciliationStaleAfter)
	stopRecon := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started",
		zap.Duration("interval", cfg.ReconciliationInterval),
		zap.Duration("stale_after", cfg.ReconciliationStaleAfter),
	)

	expiryWorker := worker.NewDepositExpiryWorker(deposits).
		WithPollInterval(cfg.DepositExpiryInterval).
		WithExpireAfter(cfg.DepositExpiryAfter)
	stopExpiry := expiryWorker.Run(ctx)
	logger.Info("deposit expiry worker started", zap.String("worker", expiryWorker.String()))

	router := api.NewRouter(cfg, logger, services, idemStore, checks)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DisbursementTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopRecon()
	stopExpiry()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
	closeNotifier()

	logger.Info("shutdown complete")
	return nil
}

type pingStore interface {
	service.QueryStore
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config) (pingStore, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		return repository.NewMemoryStore(), func() {}, nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return repository.NewStore(pool), pool.Close, nil
}

func newRateProvider(cfg *config.Config, cache redis.Cmdable, samples rates.SampleStore) rates.Provider {
	var source rates.Provider
	if cfg.RateProvider == "http" {
		source = rates.NewHTTPProvider(cfg.FXBaseURL, cfg.CryptoBaseURL, cfg.RateTimeout)
	} else {
		source = rates.NewStaticProvider(nil)
	}

	var rateCache rates.Cache = rates.NewMemoryCache()
	if cfg.RateCacheBackend == "redis" && cache != nil {
		rateCache = rates.NewRedisCache(cache)
	}
	return rates.NewCachedProvider(source, rateCache, samples,
		rates.WithTTL(cfg.RateCacheTTL),
		rates.WithStaleness(cfg.RateStalenessWindow),
		rates.WithTimeout(cfg.RateTimeout),
	)
}

func newDisburser(cfg *config.Config) gateway.Disburser {
	if cfg.ProviderMode == "http" {
		return gateway.NewHTTPDisburser(cfg.ProviderBaseURL, cfg.ProviderSecretKey, cfg.DisbursementTimeout)
	}
	return gateway.NewMockDisburser()
}

func newNotifier(cfg *config.Config) (notify.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(), func() {}
	}
	kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
	return kn, func() {
		if err := kn.Close(); err != nil {
			zap.L().Warn("close kafka writer failed", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
