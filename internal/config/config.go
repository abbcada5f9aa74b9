package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort             string
	StorageDriver        string
	DatabaseURL          string
	RedisURL             string
	JWTSecret            string
	JWTIssuer            string
	JWTAudience          string
	WebhookHMACKey       string
	WebhookSkipSignature bool
	PublicRateLimitRPS   int
	AuthRateLimitRPS     int
	CORSAllowedOrigins   []string
	LogLevel             string
	IdempotencyTTL       time.Duration

	ProviderMode        string
	ProviderBaseURL     string
	ProviderSecretKey   string
	DisbursementTimeout time.Duration

	RateProvider        string
	FXBaseURL           string
	CryptoBaseURL       string
	RateTimeout         time.Duration
	RateCacheTTL        time.Duration
	RateCacheBackend    string
	RateStalenessWindow time.Duration

	ReconciliationInterval   time.Duration
	ReconciliationStaleAfter time.Duration
	DepositExpiryInterval    time.Duration
	DepositExpiryAfter       time.Duration

	KafkaBrokers           []string
	KafkaNotificationTopic string

	FeeFreeTransfers int
	FeeWindow        time.Duration
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "WALLET_PORT")
	bindEnv(v, "storage_driver", "STORAGE_DRIVER", "WALLET_STORAGE_DRIVER")
	bindEnv(v, "database_url", "DATABASE_URL", "WALLET_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "WALLET_REDIS_URL")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "WALLET_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "WALLET_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "WALLET_JWT_AUDIENCE")
	bindEnv(v, "webhook_hmac_key", "WEBHOOK_HMAC_KEY", "WALLET_WEBHOOK_HMAC_KEY")
	bindEnv(v, "webhook_skip_sig", "WEBHOOK_SKIP_SIG", "WALLET_WEBHOOK_SKIP_SIG")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "WALLET_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "auth_rate_limit_rps", "AUTH_RATE_LIMIT_RPS", "WALLET_AUTH_RATE_LIMIT_RPS")
	bindEnv(v, "cors_allowed_origins", "CORS_ALLOWED_ORIGINS", "WALLET_CORS_ALLOWED_ORIGINS")
	bindEnv(v, "log_level", "LOG_LEVEL", "WALLET_LOG_LEVEL")
	bindEnv(v, "idempotency_ttl", "IDEMPOTENCY_TTL", "WALLET_IDEMPOTENCY_TTL")
	bindEnv(v, "provider_mode", "PROVIDER_MODE", "WALLET_PROVIDER_MODE")
	bindEnv(v, "provider_base_url", "PROVIDER_BASE_URL", "WALLET_PROVIDER_BASE_URL")
	bindEnv(v, "provider_secret_key", "PROVIDER_SECRET_KEY", "WALLET_PROVIDER_SECRET_KEY")
	bindEnv(v, "disbursement_timeout", "DISBURSEMENT_TIMEOUT", "WALLET_DISBURSEMENT_TIMEOUT")
	bindEnv(v, "rate_provider", "RATE_PROVIDER", "WALLET_RATE_PROVIDER")
	bindEnv(v, "fx_base_url", "FX_BASE_URL", "WALLET_FX_BASE_URL")
	bindEnv(v, "crypto_base_url", "CRYPTO_BASE_URL", "WALLET_CRYPTO_BASE_URL")
	bindEnv(v, "rate_timeout", "RATE_TIMEOUT", "WALLET_RATE_TIMEOUT")
	bindEnv(v, "rate_cache_ttl", "RATE_CACHE_TTL", "WALLET_RATE_CACHE_TTL")
	bindEnv(v, "rate_cache_backend", "RATE_CACHE_BACKEND", "WALLET_RATE_CACHE_BACKEND")
	bindEnv(v, "rate_staleness_window", "RATE_STALENESS_WINDOW", "WALLET_RATE_STALENESS_WINDOW")
	bindEnv(v, "reconciliation_interval", "RECONCILIATION_INTERVAL", "WALLET_RECONCILIATION_INTERVAL")
	bindEnv(v, "reconciliation_stale_after", "RECONCILIATION_STALE_AFTER", "WALLET_RECONCILIATION_STALE_AFTER")
	bindEnv(v, "deposit_expiry_interval", "DEPOSIT_EXPIRY_INTERVAL", "WALLET_DEPOSIT_EXPIRY_INTERVAL")
	bindEnv(v, "deposit_expiry_after", "DEPOSIT_EXPIRY_AFTER", "WALLET_DEPOSIT_EXPIRY_AFTER")
	bindEnv(v, "kafka_brokers", "KAFKA_BROKERS", "WALLET_KAFKA_BROKERS")
	bindEnv(v, "kafka_notification_topic", "KAFKA_NOTIFICATION_TOPIC", "WALLET_KAFKA_NOTIFICATION_TOPIC")
	bindEnv(v, "fee_free_transfers", "FEE_FREE_TRANSFERS", "WALLET_FEE_FREE_TRANSFERS")
	bindEnv(v, "fee_window", "FEE_WINDOW", "WALLET_FEE_WINDOW")

	v.SetDefault("port", "8080")
	v.SetDefault("storage_driver", StoragePostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "wallet-ledger")
	v.SetDefault("jwt_audience", "wallet-api")
	v.SetDefault("webhook_hmac_key", "")
	v.SetDefault("webhook_skip_sig", false)
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("auth_rate_limit_rps", 100)
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("provider_mode", "mock")
	v.SetDefault("provider_base_url", "")
	v.SetDefault("provider_secret_key", "")
	v.SetDefault("disbursement_timeout", "15s")
	v.SetDefault("rate_provider", "static")
	v.SetDefault("fx_base_url", "https://open.er-api.com/v6")
	v.SetDefault("crypto_base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("rate_timeout", "5s")
	v.SetDefault("rate_cache_ttl", "60s")
	v.SetDefault("rate_cache_backend", "memory")
	v.SetDefault("rate_staleness_window", "15m")
	v.SetDefault("reconciliation_interval", "1m")
	v.SetDefault("reconciliation_stale_after", "10m")
	v.SetDefault("deposit_expiry_interval", "5m")
	v.SetDefault("deposit_expiry_after", "24h")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_notification_topic", "wallet.notifications")
	v.SetDefault("fee_free_transfers", 3)
	v.SetDefault("fee_window", "168h")

	durations := map[string]*time.Duration{}
	cfg := &Config{
		HTTPPort:               v.GetString("port"),
		StorageDriver:          strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		DatabaseURL:            v.GetString("database_url"),
		RedisURL:               v.GetString("redis_url"),
		JWTSecret:              v.GetString("jwt_secret"),
		JWTIssuer:              v.GetString("jwt_issuer"),
		JWTAudience:            v.GetString("jwt_audience"),
		WebhookHMACKey:         v.GetString("webhook_hmac_key"),
		WebhookSkipSignature:   v.GetBool("webhook_skip_sig"),
		PublicRateLimitRPS:     max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:       max(v.GetInt("auth_rate_limit_rps"), 1),
		CORSAllowedOrigins:     splitList(v.GetString("cors_allowed_origins")),
		LogLevel:               v.GetString("log_level"),
		ProviderMode:           strings.ToLower(strings.TrimSpace(v.GetString("provider_mode"))),
		ProviderBaseURL:        strings.TrimRight(v.GetString("provider_base_url"), "/"),
		ProviderSecretKey:      v.GetString("provider_secret_key"),
		RateProvider:           strings.ToLower(strings.TrimSpace(v.GetString("rate_provider"))),
		FXBaseURL:              strings.TrimRight(v.GetString("fx_base_url"), "/"),
		CryptoBaseURL:          strings.TrimRight(v.GetString("crypto_base_url"), "/"),
		RateCacheBackend:       strings.ToLower(strings.TrimSpace(v.GetString("rate_cache_backend"))),
		KafkaBrokers:           splitList(v.GetString("kafka_brokers")),
		KafkaNotificationTopic: v.GetString("kafka_notification_topic"),
		FeeFreeTransfers:       v.GetInt("fee_free_transfers"),
	}
	durations["idempotency_ttl"] = &cfg.IdempotencyTTL
	durations["disbursement_timeout"] = &cfg.DisbursementTimeout
	durations["rate_timeout"] = &cfg.RateTimeout
	durations["rate_cache_ttl"] = &cfg.RateCacheTTL
	durations["rate_staleness_window"] = &cfg.RateStalenessWindow
	durations["reconciliation_interval"] = &cfg.ReconciliationInterval
	durations["reconciliation_stale_after"] = &cfg.ReconciliationStaleAfter
	durations["deposit_expiry_interval"] = &cfg.DepositExpiryInterval
	durations["deposit_expiry_after"] = &cfg.DepositExpiryAfter
	durations["fee_window"] = &cfg.FeeWindow
	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", strings.ToUpper(key))
		}
		*dst = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if !cfg.WebhookSkipSignature && strings.TrimSpace(cfg.WebhookHMACKey) == "" {
		return fmt.Errorf("WEBHOOK_HMAC_KEY is required when WEBHOOK_SKIP_SIG is false")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if strings.TrimSpace(cfg.JWTAudience) == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}

	switch cfg.StorageDriver {
	case StoragePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.WebhookSkipSignature && cfg.StorageDriver != StorageMemory {
		return fmt.Errorf("WEBHOOK_SKIP_SIG is only allowed with STORAGE_DRIVER=memory")
	}

	switch cfg.ProviderMode {
	case "mock":
	case "http":
		if cfg.ProviderBaseURL == "" || cfg.ProviderSecretKey == "" {
			return fmt.Errorf("PROVIDER_BASE_URL and PROVIDER_SECRET_KEY are required when PROVIDER_MODE is http")
		}
	default:
		return fmt.Errorf("unsupported PROVIDER_MODE %q", cfg.ProviderMode)
	}

	switch cfg.RateProvider {
	case "static", "http":
	default:
		return fmt.Errorf("unsupported RATE_PROVIDER %q", cfg.RateProvider)
	}
	switch cfg.RateCacheBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when RATE_CACHE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unsupported RATE_CACHE_BACKEND %q", cfg.RateCacheBackend)
	}

	if cfg.FeeFreeTransfers < 0 {
		return fmt.Errorf("FEE_FREE_TRANSFERS must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
