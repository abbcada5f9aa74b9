package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SampleStore persists live quotes for the staleness fallback.
type SampleStore interface {
	InsertRateSample(ctx context.Context, arg models.RateSample) error
	GetLatestRateSample(ctx context.Context, arg repository.GetLatestRateSampleParams) (models.RateSample, error)
}

// CachedProvider fronts a live Provider with a cache and falls back to the
// newest persisted sample inside the staleness window when the feed fails.
type CachedProvider struct {
	source    Provider
	cache     Cache
	samples   SampleStore
	ttl       time.Duration
	staleness time.Duration
	timeout   time.Duration
	now       func() time.Time
}

type CachedOption func(*CachedProvider)

func WithTTL(ttl time.Duration) CachedOption {
	return func(p *CachedProvider) { p.ttl = ttl }
}

func WithStaleness(window time.Duration) CachedOption {
	return func(p *CachedProvider) { p.staleness = window }
}

// WithTimeout bounds each live fetch.
func WithTimeout(timeout time.Duration) CachedOption {
	return func(p *CachedProvider) { p.timeout = timeout }
}

func WithClock(now func() time.Time) CachedOption {
	return func(p *CachedProvider) { p.now = now }
}

func NewCachedProvider(source Provider, cache Cache, samples SampleStore, opts ...CachedOption) *CachedProvider {
	p := &CachedProvider{
		source:    source,
		cache:     cache,
		samples:   samples,
		ttl:       time.Minute,
		staleness: 30 * time.Minute,
		timeout:   5 * time.Second,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CachedProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := pairKey(from, to)
	now := p.now()

	if p.cache != nil {
		entry, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("rate cache lookup failed", zap.String("pair", key), zap.Error(err))
		} else if ok && entry.Fresh(now) {
			observability.IncrementRateLookup("cache")
			return entry.Value, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	rate, err := p.source.Rate(fetchCtx, from, to)
	cancel()
	if err == nil {
		observability.IncrementRateLookup("live")
		p.remember(ctx, from, to, rate, now)
		return rate, nil
	}

	zap.L().Warn("live rate unavailable, trying persisted sample",
		zap.String("pair", key),
		zap.Error(err),
	)
	return p.fallback(ctx, from, to, now, err)
}

// Invalidate drops the cached quote so the next lookup hits the feed.
func (p *CachedProvider) Invalidate(ctx context.Context, from, to string) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Invalidate(ctx, pairKey(from, to))
}

func (p *CachedProvider) remember(ctx context.Context, from, to string, rate decimal.Decimal, now time.Time) {
	if p.cache != nil {
		if err := p.cache.Set(ctx, pairKey(from, to), Entry{Value: rate, FetchedAt: now, TTL: p.ttl}); err != nil {
			zap.L().Warn("rate cache set failed", zap.String("pair", pairKey(from, to)), zap.Error(err))
		}
	}
	if p.samples != nil {
		sample := models.RateSample{FromCurrency: from, ToCurrency: to, Rate: rate, FetchedAt: now}
		if err := p.samples.InsertRateSample(ctx, sample); err != nil {
			zap.L().Warn("persist rate sample failed", zap.String("pair", pairKey(from, to)), zap.Error(err))
		}
	}
}

func (p *CachedProvider) fallback(ctx context.Context, from, to string, now time.Time, cause error) (decimal.Decimal, error) {
	if p.samples == nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrNoRateAvailable, cause)
	}
	sample, err := p.samples.GetLatestRateSample(ctx, repository.GetLatestRateSampleParams{
		FromCurrency: from,
		ToCurrency:   to,
		NotBefore:    now.Add(-p.staleness),
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return decimal.Zero, fmt.Errorf("%w: %s/%s", domain.ErrNoRateAvailable, from, to)
		}
		return decimal.Zero, errors.Join(fmt.Errorf("%w: %s/%s", domain.ErrNoRateAvailable, from, to), err)
	}
	observability.IncrementRateLookup("fallback")
	return sample.Rate, nil
}
