// Package fees computes transaction fees. Everything here is pure: callers
// supply the usage history, the engine never reads storage.
package fees

import (
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBankTransfer     Kind = "bank_transfer"
	KindUSDWithdrawal    Kind = "usd_withdrawal"
	KindCryptoWithdrawal Kind = "crypto_withdrawal"
	KindUSDToNGN         Kind = "usd_to_ngn"
	KindNGNToUSD         Kind = "ngn_to_usd"
	KindCoinToNGN        Kind = "coin_to_ngn"
)

var ErrUnknownKind = errors.New("unknown fee kind")

// Rule describes how one kind is charged. The fee is Flat plus Percent of the
// amount, raised to the minimum for the amount's currency. The first
// FreeQuota operations inside the usage window cost nothing.
type Rule struct {
	Percent   decimal.Decimal
	Flat      int64
	Minimums  map[string]int64
	FreeQuota int
}

// Usage is the caller's recent activity for the kind being priced.
type Usage struct {
	RecentCount int
}

type Engine struct {
	rules map[Kind]Rule
}

type Option func(*Engine)

// WithFreeTransfers overrides the bank transfer quota.
func WithFreeTransfers(n int) Option {
	return func(e *Engine) {
		r := e.rules[KindBankTransfer]
		r.FreeQuota = n
		e.rules[KindBankTransfer] = r
	}
}

// WithRule replaces the rule for kind.
func WithRule(kind Kind, rule Rule) Option {
	return func(e *Engine) {
		e.rules[kind] = rule
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{rules: DefaultSchedule()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultSchedule returns a fresh copy of the standard fee table.
func DefaultSchedule() map[Kind]Rule {
	unit := int64(domain.MicrosPerUnit)
	return map[Kind]Rule{
		KindBankTransfer: {
			Flat:      50 * unit,
			FreeQuota: 3,
		},
		KindUSDWithdrawal: {
			Percent:  decimal.RequireFromString("0.01"),
			Minimums: map[string]int64{domain.CurrencyUSD: 1 * unit},
		},
		KindCryptoWithdrawal: {
			Percent: decimal.RequireFromString("0.005"),
			Minimums: map[string]int64{
				domain.CurrencyBTC:  100,
				domain.CurrencyETH:  2_000,
				domain.CurrencyUSDT: 1 * unit,
			},
		},
		KindUSDToNGN: {
			Flat: 1_000 * unit,
		},
		KindNGNToUSD: {
			Percent:  decimal.RequireFromString("0.015"),
			Minimums: map[string]int64{domain.CurrencyNGN: 500 * unit},
		},
		KindCoinToNGN: {
			Percent:  decimal.RequireFromString("0.01"),
			Minimums: map[string]int64{domain.CurrencyNGN: 500 * unit},
		},
	}
}

// Compute returns the fee for moving amount under kind, in amount's currency.
func (e *Engine) Compute(kind Kind, amount domain.Money, usage Usage) (domain.Money, error) {
	if amount.Amount <= 0 {
		return domain.Money{}, domain.ErrInvalidAmount
	}
	rule, ok := e.rules[kind]
	if !ok {
		return domain.Money{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	fee := domain.Money{Currency: amount.Currency}
	if rule.FreeQuota > 0 && usage.RecentCount < rule.FreeQuota {
		return fee, nil
	}

	micros := rule.Flat
	if !rule.Percent.IsZero() {
		micros += decimal.NewFromInt(amount.Amount).Mul(rule.Percent).Ceil().IntPart()
	}
	if min, ok := rule.Minimums[amount.Currency]; ok && micros < min {
		micros = min
	}
	if micros < 0 {
		micros = 0
	}
	fee.Amount = micros
	return fee, nil
}

// ConversionKind maps a currency pair to its fee kind. The returned basis is
// the currency the fee is computed and charged in.
func ConversionKind(from, to string) (kind Kind, basis string, err error) {
	switch {
	case from == to:
		return "", "", fmt.Errorf("%w: %s to itself", domain.ErrUnsupportedConversion, from)
	case from == domain.CurrencyUSD && to == domain.CurrencyNGN:
		return KindUSDToNGN, domain.CurrencyNGN, nil
	case from == domain.CurrencyNGN && to == domain.CurrencyUSD:
		return KindNGNToUSD, domain.CurrencyNGN, nil
	case domain.IsCrypto(from) && to == domain.CurrencyNGN:
		return KindCoinToNGN, domain.CurrencyNGN, nil
	default:
		return "", "", fmt.Errorf("%w: %s to %s", domain.ErrUnsupportedConversion, from, to)
	}
}

// WithdrawalKind maps a withdrawal currency to its fee kind.
func WithdrawalKind(currency string) (Kind, error) {
	switch {
	case currency == domain.CurrencyNGN:
		return KindBankTransfer, nil
	case currency == domain.CurrencyUSD:
		return KindUSDWithdrawal, nil
	case domain.IsCrypto(currency):
		return KindCryptoWithdrawal, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, currency)
	}
}
