package rates

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultUSDRates quotes each currency as units per one USD.
var DefaultUSDRates = map[string]decimal.Decimal{
	domain.CurrencyUSD:  decimal.NewFromInt(1),
	domain.CurrencyNGN:  decimal.NewFromInt(1500),
	domain.CurrencyUSDT: decimal.NewFromInt(1),
	domain.CurrencyBTC:  decimal.RequireFromString("0.000016"),
	domain.CurrencyETH:  decimal.RequireFromString("0.0004"),
}

// StaticProvider serves rates derived from a fixed per-USD table.
type StaticProvider struct {
	usdRates map[string]decimal.Decimal
}

func NewStaticProvider(usdRates map[string]decimal.Decimal) *StaticProvider {
	if usdRates == nil {
		usdRates = DefaultUSDRates
	}
	return &StaticProvider{usdRates: usdRates}
}

// Rate returns target/source. USD -> NGN = 1500 / 1.
func (p *StaticProvider) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	source, ok1 := p.usdRates[from]
	target, ok2 := p.usdRates[to]
	if !ok1 || !ok2 || source.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: no static quote for %s/%s", domain.ErrRateUnavailable, from, to)
	}
	return target.Div(source), nil
}
