package domain

import (
	"fmt"
	"strings"
)

const (
	CurrencyNGN  = "NGN"
	CurrencyUSD  = "USD"
	CurrencyBTC  = "BTC"
	CurrencyETH  = "ETH"
	CurrencyUSDT = "USDT"
)

// Currencies lists every balance a wallet carries, fiat first.
var Currencies = []string{CurrencyNGN, CurrencyUSD, CurrencyBTC, CurrencyETH, CurrencyUSDT}

var cryptoCurrencies = map[string]struct{}{
	CurrencyBTC:  {},
	CurrencyETH:  {},
	CurrencyUSDT: {},
}

// NormalizeCurrency upper-cases code and rejects anything outside Currencies.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, known := range Currencies {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
}

func IsCrypto(currency string) bool {
	_, ok := cryptoCurrencies[currency]
	return ok
}

func IsFiat(currency string) bool {
	return currency == CurrencyNGN || currency == CurrencyUSD
}
