package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MicrosPerUnit is the fixed-point scale of every stored amount.
const MicrosPerUnit = 1_000_000

var (
	microsScale = decimal.NewFromInt(MicrosPerUnit)
	maxMicros   = decimal.NewFromInt(math.MaxInt64)
)

// Money represents a monetary value in a specific currency.
// Amount is stored as BIGINT micros (10^-6) to avoid floating point errors.
type Money struct {
	Amount   int64  // micros
	Currency string // ISO 4217 or crypto ticker
}

// NewMoney creates a new Money instance from micros.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// ParseMoney reads a decimal string such as "5000.50" into micros.
// Precision beyond micros is rejected rather than silently truncated.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	scaled := d.Mul(microsScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: more than 6 decimal places", ErrInvalidAmount)
	}
	if d.Sign() <= 0 {
		return Money{}, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if scaled.GreaterThan(maxMicros) {
		return Money{}, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, amount)
	}
	return Money{Amount: scaled.IntPart(), Currency: currency}, nil
}

// FitsMicros reports whether d, in whole units, can be stored as micros.
func FitsMicros(d decimal.Decimal) bool {
	return d.Mul(microsScale).Abs().LessThanOrEqual(maxMicros)
}

// ToDecimal converts the int64 micros to a shopspring/decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(microsScale)
}

// FromDecimal converts a decimal.Decimal to int64 micros, rounding down.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(microsScale).IntPart()
}

// Convert converts the money to a target currency using a given FX rate.
// The rate should be (Target / Source). The result is rounded down.
func (m Money) Convert(targetCurrency string, rate decimal.Decimal) Money {
	amountDec := m.ToDecimal().Mul(rate)
	return Money{
		Amount:   FromDecimal(amountDec),
		Currency: targetCurrency,
	}
}

// Add returns m+o. Both must share a currency.
func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// String returns the string representation of the money.
func (m Money) String() string {
	places := int32(2)
	if IsCrypto(m.Currency) {
		places = 6
	}
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(places), m.Currency)
}

// FormatMicros renders micros as a plain decimal string for API payloads.
func FormatMicros(amount int64) string {
	return decimal.NewFromInt(amount).Div(microsScale).String()
}
