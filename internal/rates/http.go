package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

var coinGeckoIDs = map[string]string{
	domain.CurrencyBTC:  "bitcoin",
	domain.CurrencyETH:  "ethereum",
	domain.CurrencyUSDT: "tether",
}

// HTTPProvider reads fiat rates from an open exchange-rate style feed
// (GET {fxBase}/latest/{FROM} -> {"rates":{"NGN":1500}}) and crypto prices
// from a CoinGecko style feed
// (GET {cryptoBase}/simple/price?ids=bitcoin&vs_currencies=ngn).
type HTTPProvider struct {
	fxBaseURL     string
	cryptoBaseURL string
	client        *http.Client
}

func NewHTTPProvider(fxBaseURL, cryptoBaseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		fxBaseURL:     strings.TrimRight(fxBaseURL, "/"),
		cryptoBaseURL: strings.TrimRight(cryptoBaseURL, "/"),
		client:        &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if domain.IsCrypto(from) {
		return p.cryptoRate(ctx, from, to)
	}
	if domain.IsCrypto(to) {
		inverse, err := p.cryptoRate(ctx, to, from)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(1).Div(inverse), nil
	}
	return p.fiatRate(ctx, from, to)
}

func (p *HTTPProvider) fiatRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	var body struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	endpoint := fmt.Sprintf("%s/latest/%s", p.fxBaseURL, url.PathEscape(from))
	if err := p.getJSON(ctx, endpoint, &body); err != nil {
		return decimal.Zero, err
	}
	rate, ok := body.Rates[to]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: feed has no %s/%s quote", domain.ErrRateUnavailable, from, to)
	}
	return rate, nil
}

func (p *HTTPProvider) cryptoRate(ctx context.Context, coin, fiat string) (decimal.Decimal, error) {
	id, ok := coinGeckoIDs[coin]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown coin %s", domain.ErrRateUnavailable, coin)
	}
	vs := strings.ToLower(fiat)
	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", vs)

	var body map[string]map[string]decimal.Decimal
	if err := p.getJSON(ctx, p.cryptoBaseURL+"/simple/price?"+query.Encode(), &body); err != nil {
		return decimal.Zero, err
	}
	price, ok := body[id][vs]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: feed has no %s/%s price", domain.ErrRateUnavailable, coin, fiat)
	}
	return price, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrRateUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: feed returned %d", domain.ErrRateUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode feed: %v", domain.ErrRateUnavailable, err)
	}
	return nil
}
