package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadMemoryDriverDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("WEBHOOK_HMAC_KEY", "whsec")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.DisbursementTimeout)
	assert.Equal(t, 168*time.Hour, cfg.FeeWindow)
	assert.Equal(t, 3, cfg.FeeFreeTransfers)
	assert.Equal(t, "mock", cfg.ProviderMode)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadPrefixedNames(t *testing.T) {
	t.Setenv("WALLET_JWT_SECRET", testSecret)
	t.Setenv("WALLET_WEBHOOK_HMAC_KEY", "whsec")
	t.Setenv("WALLET_DATABASE_URL", "postgres://localhost/wallet")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RATE_TIMEOUT", "2s")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://localhost/wallet", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Second, cfg.RateTimeout)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "short_secret", env: map[string]string{"JWT_SECRET": "short"}, want: "JWT_SECRET"},
		{name: "missing_db", env: map[string]string{"JWT_SECRET": testSecret, "WEBHOOK_HMAC_KEY": "whsec"}, want: "DATABASE_URL"},
		{name: "skip_sig_postgres", env: map[string]string{"JWT_SECRET": testSecret, "WEBHOOK_SKIP_SIG": "true", "DATABASE_URL": "postgres://localhost/wallet"}, want: "WEBHOOK_SKIP_SIG"},
		{name: "missing_hmac", env: map[string]string{"JWT_SECRET": testSecret, "STORAGE_DRIVER": "memory"}, want: "WEBHOOK_HMAC_KEY"},
		{name: "bad_duration", env: map[string]string{"JWT_SECRET": testSecret, "WEBHOOK_SKIP_SIG": "true", "STORAGE_DRIVER": "memory", "FEE_WINDOW": "weekly"}, want: "FEE_WINDOW"},
		{name: "http_provider", env: map[string]string{"JWT_SECRET": testSecret, "WEBHOOK_SKIP_SIG": "true", "STORAGE_DRIVER": "memory", "PROVIDER_MODE": "http"}, want: "PROVIDER_BASE_URL"},
		{name: "redis_cache", env: map[string]string{"JWT_SECRET": testSecret, "WEBHOOK_SKIP_SIG": "true", "STORAGE_DRIVER": "memory", "RATE_CACHE_BACKEND": "redis"}, want: "REDIS_URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
