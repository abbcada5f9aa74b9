package repository

import (
	"context"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const conversionColumns = `id, transaction_id, user_id, from_currency, to_currency, from_amount_micros, to_amount_micros, rate::text, fee_micros, fee_currency, created_at`

func scanConversion(row rowScanner) (models.Conversion, error) {
	var (
		c    models.Conversion
		rate string
	)
	if err := row.Scan(
		&c.ID,
		&c.TransactionID,
		&c.UserID,
		&c.FromCurrency,
		&c.ToCurrency,
		&c.FromAmountMicros,
		&c.ToAmountMicros,
		&rate,
		&c.FeeMicros,
		&c.FeeCurrency,
		&c.CreatedAt,
	); err != nil {
		return c, err
	}
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return c, err
	}
	c.Rate = parsed
	return c, nil
}

const createConversion = `-- name: CreateConversion :one
INSERT INTO conversions (id, transaction_id, user_id, from_currency, to_currency, from_amount_micros, to_amount_micros, rate, fee_micros, fee_currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10)
RETURNING ` + conversionColumns

type CreateConversionParams struct {
	ID               uuid.UUID
	TransactionID    uuid.UUID
	UserID           uuid.UUID
	FromCurrency     string
	ToCurrency       string
	FromAmountMicros int64
	ToAmountMicros   int64
	Rate             decimal.Decimal
	FeeMicros        int64
	FeeCurrency      string
}

func (q *Queries) CreateConversion(ctx context.Context, arg CreateConversionParams) (models.Conversion, error) {
	row := q.db.QueryRow(ctx, createConversion,
		arg.ID,
		arg.TransactionID,
		arg.UserID,
		arg.FromCurrency,
		arg.ToCurrency,
		arg.FromAmountMicros,
		arg.ToAmountMicros,
		arg.Rate.String(),
		arg.FeeMicros,
		arg.FeeCurrency,
	)
	return scanConversion(row)
}

const getConversionByTransactionID = `-- name: GetConversionByTransactionID :one
SELECT ` + conversionColumns + ` FROM conversions WHERE transaction_id = $1`

func (q *Queries) GetConversionByTransactionID(ctx context.Context, transactionID uuid.UUID) (models.Conversion, error) {
	return scanConversion(q.db.QueryRow(ctx, getConversionByTransactionID, transactionID))
}
