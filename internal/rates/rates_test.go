package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	calls atomic.Int32
	rate  decimal.Decimal
	err   error
}

func (s *stubProvider) Rate(context.Context, string, string) (decimal.Decimal, error) {
	s.calls.Add(1)
	return s.rate, s.err
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(nil)

	rate, err := p.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1500)))

	back, err := p.Rate(context.Background(), domain.CurrencyNGN, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, rate.Mul(back).Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.RequireFromString("0.000001")))

	_, err = p.Rate(context.Background(), domain.CurrencyUSD, "XYZ")
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}

func TestCachedProvider_ServesFreshEntryFromCache(t *testing.T) {
	source := &stubProvider{rate: decimal.NewFromInt(1500)}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewCachedProvider(source, NewMemoryCache(), nil, WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		rate, err := p.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyNGN)
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(1500)))
	}
	assert.Equal(t, int32(1), source.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := p.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load(), "expired entry is refetched")
}

func TestCachedProvider_Invalidate(t *testing.T) {
	source := &stubProvider{rate: decimal.NewFromInt(1500)}
	p := NewCachedProvider(source, NewMemoryCache(), nil)
	ctx := context.Background()

	_, err := p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)
	require.NoError(t, p.Invalidate(ctx, domain.CurrencyUSD, domain.CurrencyNGN))
	_, err = p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)

	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCachedProvider_FallsBackToPersistedSample(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Queries().InsertRateSample(ctx, models.RateSample{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencyNGN,
		Rate:         decimal.NewFromInt(1480),
		FetchedAt:    now.Add(-10 * time.Minute),
	}))

	source := &stubProvider{err: fmt.Errorf("%w: feed down", domain.ErrRateUnavailable)}
	p := NewCachedProvider(source, NewMemoryCache(), store.Queries(),
		WithStaleness(30*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	rate, err := p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1480)))
}

func TestCachedProvider_NoRateWhenSampleTooOld(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Queries().InsertRateSample(ctx, models.RateSample{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencyNGN,
		Rate:         decimal.NewFromInt(1480),
		FetchedAt:    now.Add(-2 * time.Hour),
	}))

	source := &stubProvider{err: errors.New("connection refused")}
	p := NewCachedProvider(source, nil, store.Queries(),
		WithStaleness(30*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	_, err := p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	assert.ErrorIs(t, err, domain.ErrNoRateAvailable)
}

func TestCachedProvider_PersistsLiveSamples(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	source := &stubProvider{rate: decimal.NewFromInt(1510)}
	p := NewCachedProvider(source, nil, store.Queries())

	_, err := p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)

	sample, err := store.Queries().GetLatestRateSample(ctx, repository.GetLatestRateSampleParams{
		FromCurrency: domain.CurrencyUSD,
		ToCurrency:   domain.CurrencyNGN,
		NotBefore:    time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, sample.Rate.Equal(decimal.NewFromInt(1510)))
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisCache(client)
	ctx := context.Background()
	entry := Entry{Value: decimal.RequireFromString("1499.25"), FetchedAt: time.Now().UTC().Truncate(time.Second), TTL: time.Minute}

	require.NoError(t, cache.Set(ctx, "USD_NGN", entry))
	got, ok, err := cache.Get(ctx, "USD_NGN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Value.Equal(entry.Value))
	assert.True(t, got.FetchedAt.Equal(entry.FetchedAt))

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "USD_NGN")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "USD_NGN", entry))
	require.NoError(t, cache.Invalidate(ctx, "USD_NGN"))
	_, ok, err = cache.Get(ctx, "USD_NGN")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/latest/USD":
			_, _ = w.Write([]byte(`{"result":"success","rates":{"NGN":1500.5,"USD":1}}`))
		case r.URL.Path == "/simple/price" && r.URL.Query().Get("ids") == "bitcoin":
			_, _ = w.Write([]byte(`{"bitcoin":{"ngn":95000000}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, srv.URL, time.Second)
	ctx := context.Background()

	rate, err := p.Rate(ctx, domain.CurrencyUSD, domain.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("1500.5")))

	rate, err = p.Rate(ctx, domain.CurrencyBTC, domain.CurrencyNGN)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(95_000_000)))

	_, err = p.Rate(ctx, domain.CurrencyNGN, domain.CurrencyUSD)
	assert.ErrorIs(t, err, domain.ErrRateUnavailable)
}
