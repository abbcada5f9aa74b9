package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	EmailVerified   bool      `json:"email_verified"`
	KYCVerified     bool      `json:"kyc_verified"`
	ProfileVerified bool      `json:"profile_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

// Wallet is the per-user container of balances.
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balances  []Balance `json:"balances,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Balance is one currency slot of a wallet. Held funds are reserved for
// in-flight withdrawals and are not spendable.
type Balance struct {
	UserID       uuid.UUID `json:"user_id"`
	Currency     string    `json:"currency"`
	BalanceMicro int64     `json:"balance_micros"`
	HeldMicro    int64     `json:"held_micros"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (b Balance) Available() int64 {
	return b.BalanceMicro - b.HeldMicro
}

// Transaction is a journal entry: one attempted money movement.
type Transaction struct {
	ID                uuid.UUID `json:"id"`
	Reference         string    `json:"reference"`
	UserID            uuid.UUID `json:"user_id"`
	AmountMicros      int64     `json:"amount_micros"`
	FeeMicros         int64     `json:"fee_micros"`
	HoldMicros        int64     `json:"hold_micros"`
	Currency          string    `json:"currency"`
	Kind              string    `json:"kind"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	ProviderReference *string   `json:"provider_reference,omitempty"`
	Metadata          []byte    `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Conversion is the immutable record of a successful currency conversion.
type Conversion struct {
	ID               uuid.UUID       `json:"id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	UserID           uuid.UUID       `json:"user_id"`
	FromCurrency     string          `json:"from_currency"`
	ToCurrency       string          `json:"to_currency"`
	FromAmountMicros int64           `json:"from_amount_micros"`
	ToAmountMicros   int64           `json:"to_amount_micros"`
	Rate             decimal.Decimal `json:"rate"`
	FeeMicros        int64           `json:"fee_micros"`
	FeeCurrency      string          `json:"fee_currency"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RateSample is a persisted provider quote used as a fallback when the
// live feed is down.
type RateSample struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// ExternalWallet is a withdrawal destination. It never holds balance.
type ExternalWallet struct {
	UserID    uuid.UUID `json:"user_id"`
	Currency  string    `json:"currency"`
	Address   string    `json:"address"`
	Label     string    `json:"label"`
	Network   string    `json:"network"`
	UpdatedAt time.Time `json:"updated_at"`
}
